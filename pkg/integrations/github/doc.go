// Package github provides an HTTP client for the GitHub repository API.
//
// # Usage
//
//	client := github.NewClient(github.Config{Token: os.Getenv("GITHUB_TOKEN")})
//
//	res, err := client.FetchRepo(ctx, "expressjs", "express")
//	if err != nil {
//	    return err // transport failure
//	}
//	switch res.Status {
//	case http.StatusOK:
//	    fmt.Println(res.Stars, res.OpenIssues)
//	case http.StatusForbidden, http.StatusTooManyRequests:
//	    fmt.Println("rate limited until", res.RateLimit.Reset)
//	}
//
// [Client.FetchRepo] returns every HTTP status to the caller together with
// the parsed X-RateLimit-* headers, so the caller owns the rate-limit policy.
// Unauthenticated requests are limited to 60 per hour; a token raises that
// to 5000.
package github
