// Package pkg provides the core libraries of npmdash, a dashboard backend for
// npm package publishers.
//
// # Overview
//
// npmdash lists every package an npm user maintains, with weekly downloads
// and dependents from npm and stars and open issues from GitHub. GitHub is
// slow and rate limited, so its numbers are filled in progressively. The pkg
// directory is organized into these areas:
//
//  1. [integrations] - npm registry and GitHub API clients
//  2. [enrich] - stats and per-package GitHub lookups behind the HTTP API
//  3. [pipeline] - progressive enrichment of a whole dashboard
//  4. [history] - best-effort snapshots so the next lookup can show changes
//  5. [cache], [httputil], [ratelimit], [errors] - supporting infrastructure
//
// # Architecture
//
// The typical data flow through npmdash:
//
//	npm search + downloads API
//	         ↓
//	    [enrich] Stats (packages with npm numbers)
//	         ↓
//	    [pipeline] Session (batches of two, retries, rate-limit stop)
//	         ↓  per package
//	    [enrich] Enrich (GitHub stars and issues)
//	         ↓
//	    [history] Store (save snapshot, diff against the last one)
//
// # Quick Start
//
//	svc := enrich.NewService(npm.NewClient(npm.Config{}), github.NewClient(github.Config{}), nil, nil)
//	sess := pipeline.NewSession(pipeline.Options{
//	    Stats:    &pipeline.ServiceStatsSource{Service: svc},
//	    Enricher: &pipeline.ServiceEnricher{Service: svc},
//	})
//	if err := sess.Search(ctx, "sindresorhus"); err != nil {
//	    return err
//	}
//	dash := sess.Snapshot().Stats
//
// [integrations]: github.com/matzehuels/npmdash/pkg/integrations
// [enrich]: github.com/matzehuels/npmdash/pkg/enrich
// [pipeline]: github.com/matzehuels/npmdash/pkg/pipeline
// [history]: github.com/matzehuels/npmdash/pkg/history
// [cache]: github.com/matzehuels/npmdash/pkg/cache
// [httputil]: github.com/matzehuels/npmdash/pkg/httputil
// [ratelimit]: github.com/matzehuels/npmdash/pkg/ratelimit
// [errors]: github.com/matzehuels/npmdash/pkg/errors
package pkg
