package github

import (
	"fmt"
	"regexp"
)

var (
	ownerPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)
	repoPattern  = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)
)

// ValidateRepoRef checks an owner/repo pair extracted from package metadata
// before it is put into an API path. Owners are 1-39 letters, digits or
// hyphens and cannot start with a hyphen; repository names are 1-100 letters,
// digits, dots, hyphens or underscores. "." and ".." are rejected.
func ValidateRepoRef(owner, repo string) error {
	if !ownerPattern.MatchString(owner) {
		return fmt.Errorf("invalid github owner %q", owner)
	}
	if !repoPattern.MatchString(repo) || repo == "." || repo == ".." {
		return fmt.Errorf("invalid github repository %q", repo)
	}
	return nil
}
