package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Plan is the account tier of the person searching.
type Plan string

const (
	PlanAnonymous Plan = "anonymous"
	PlanFree      Plan = "free"
	PlanPro       Plan = "pro"
)

// ParsePlan resolves a plan name. The empty string is anonymous.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PlanAnonymous, nil
	case PlanAnonymous, PlanFree, PlanPro:
		return p, nil
	default:
		return "", fmt.Errorf("unknown plan %q", s)
	}
}

// PackageLimit is how many packages a search shows on plan. Zero means
// unlimited.
func PackageLimit(p Plan) int {
	switch p {
	case PlanPro:
		return 0
	case PlanFree:
		return 100
	default:
		return 20
	}
}

// FormatUntilReset describes the time left until reset: "now", then whole
// minutes rounded up below an hour, then whole hours rounded up.
func FormatUntilReset(reset, now time.Time) string {
	d := reset.Sub(now)
	if d <= 0 {
		return "now"
	}
	if m := int(math.Ceil(d.Minutes())); m < 60 {
		return plural(m, "minute")
	}
	return plural(int(math.Ceil(d.Hours())), "hour")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
