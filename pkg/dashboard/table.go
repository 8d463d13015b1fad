package dashboard

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/npmdash/pkg/pipeline"
)

// Filter selects packages. Zero fields match everything.
type Filter struct {
	// Name matches a case-insensitive substring of the package name.
	Name         string
	MinDownloads int
	MinStars     int
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Name) == "" && f.MinDownloads <= 0 && f.MinStars <= 0
}

// Match reports whether p passes the filter.
func (f Filter) Match(p pipeline.Package) bool {
	if name := strings.TrimSpace(f.Name); name != "" &&
		!strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
		return false
	}
	return p.WeeklyDownloads >= f.MinDownloads && p.GithubStars >= f.MinStars
}

// Apply returns the packages that pass the filter, in their original order.
func (f Filter) Apply(pkgs []pipeline.Package) []pipeline.Package {
	out := make([]pipeline.Package, 0, len(pkgs))
	for _, p := range pkgs {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Field is a sortable column.
type Field string

const (
	FieldName       Field = "name"
	FieldDownloads  Field = "downloads"
	FieldDependents Field = "dependents"
	FieldStars      Field = "stars"
	FieldIssues     Field = "issues"
)

// Fields lists the sortable columns.
var Fields = []Field{FieldName, FieldDownloads, FieldDependents, FieldStars, FieldIssues}

// ParseField resolves a column name.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Fields, f) {
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q (want one of %v)", s, Fields)
}

// SortBy returns a copy of pkgs sorted by field. Ties keep the original
// order and are broken by name.
func SortBy(pkgs []pipeline.Package, field Field, desc bool) []pipeline.Package {
	out := slices.Clone(pkgs)
	slices.SortStableFunc(out, func(a, b pipeline.Package) int {
		c := compare(a, b, field)
		if desc {
			c = -c
		}
		if c == 0 {
			c = cmp.Compare(a.Name, b.Name)
		}
		return c
	})
	return out
}

func compare(a, b pipeline.Package, field Field) int {
	switch field {
	case FieldDownloads:
		return cmp.Compare(a.WeeklyDownloads, b.WeeklyDownloads)
	case FieldDependents:
		return cmp.Compare(a.Dependents, b.Dependents)
	case FieldStars:
		return cmp.Compare(a.GithubStars, b.GithubStars)
	case FieldIssues:
		return cmp.Compare(a.OpenIssues, b.OpenIssues)
	default:
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
}
