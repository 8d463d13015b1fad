package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/matzehuels/npmdash/pkg/httputil"
)

// State is where a package is in its enrichment.
type State int

const (
	Pending State = iota
	InFlight
	Succeeded
	RateLimited
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Succeeded:
		return "succeeded"
	case RateLimited:
		return "rate-limited"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further attempt follows.
func (s State) Terminal() bool {
	return s == Succeeded || s == RateLimited || s == Failed
}

// step is the decision taken after one attempt. A non-terminal State means
// "try again after Wait".
type step struct {
	State State
	Wait  time.Duration
}

// classify decides what follows attempt number attempt (1-based) that
// produced resp.
func classify(resp Response, attempt int, cfg Config) step {
	retry := func(wait time.Duration) step {
		if attempt < cfg.MaxAttempts {
			return step{State: InFlight, Wait: wait}
		}
		return step{State: Failed}
	}

	switch {
	case resp.Err != nil:
		return retry(cfg.NetworkDelay)
	case resp.Status >= 200 && resp.Status < 300:
		return step{State: Succeeded}
	case resp.Status == http.StatusTooManyRequests:
		return step{State: RateLimited}
	case resp.Status == http.StatusForbidden:
		return retry(cfg.ForbiddenDelay)
	case resp.Status >= 500:
		return retry(cfg.ServerErrorDelay)
	default:
		return step{State: Failed}
	}
}

// outcome is the final result of enriching one package.
type outcome struct {
	Name     string
	State    State
	Attempts int
	Response Response
}

// enrichItem drives one package through the state machine.
func (s *Session) enrichItem(ctx context.Context, name string) outcome {
	out := outcome{Name: name, State: Pending}
	for {
		out.Attempts++
		out.State = InFlight
		out.Response = s.enricher.Enrich(ctx, name)

		next := classify(out.Response, out.Attempts, s.cfg)
		if next.State.Terminal() {
			out.State = next.State
			return out
		}

		s.logger.Debug("retrying package", "package", name, "attempt", out.Attempts,
			"status", out.Response.Status, "wait", next.Wait)
		if err := httputil.Sleep(ctx, next.Wait); err != nil {
			out.State = Failed
			out.Response.Err = err
			return out
		}
	}
}
