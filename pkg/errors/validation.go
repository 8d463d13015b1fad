package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name for safety and correctness.
// It rejects names that could be used for path traversal or injection attacks.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., //, etc.)
//   - No null bytes
//   - Maximum length of 256 characters
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidPackage, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"//",   // Double slash
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidPackage, "package name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// npmPackageNameRegex matches valid npm package names.
var npmPackageNameRegex = regexp.MustCompile(`^(@[a-z0-9-~][a-z0-9-._~]*/)?[a-z0-9-~][a-z0-9-._~]*$`)

// ValidateNpmPackageName validates an npm package name.
func ValidateNpmPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}

	// npm names must be lowercase
	if strings.ToLower(name) != name {
		return New(ErrCodeInvalidPackage, "npm package names must be lowercase: %q", name)
	}

	if !npmPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid npm package name: %q", name)
	}

	return nil
}

var legacyNpmPackageNameRegex = regexp.MustCompile(`(?i)` + npmPackageNameRegex.String())

// ValidateRegistryPackageName validates a name that may already exist in the
// registry. Packages published before npm enforced lowercase names (for
// example "JSONStream") are accepted.
func ValidateRegistryPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}
	err := ValidateNpmPackageName(name)
	if err == nil || strings.ToLower(name) == name {
		return err
	}
	if !legacyNpmPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid npm package name: %q", name)
	}
	return nil
}

// npmUsernameRegex matches npm account names. The registry allows mixed
// case on legacy accounts, so case is not enforced.
var npmUsernameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,213}$`)

// ValidateNpmUsername validates an npm maintainer username.
func ValidateNpmUsername(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return New(ErrCodeInvalidUsername, "username is required")
	}
	if !npmUsernameRegex.MatchString(name) {
		return New(ErrCodeInvalidUsername, "invalid npm username: %q", name)
	}
	return nil
}

// ValidateUserID validates an opaque caller identity (the logged-in user).
// It becomes part of history store keys, so the ':' separator is rejected.
func ValidateUserID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "user id is required")
	}
	if len(id) > 256 {
		return New(ErrCodeInvalidInput, "user id too long (max 256 characters)")
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == ':' {
			return New(ErrCodeInvalidInput, "user id contains invalid characters")
		}
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
