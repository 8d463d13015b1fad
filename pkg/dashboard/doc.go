// Package dashboard holds the view helpers of the maintainer dashboard:
// filtering and sorting packages, week-over-week differences, plan limits
// and rate-limit countdowns.
//
// Everything here is pure. The helpers operate on [pipeline.Package]
// values and never mutate their input.
package dashboard
