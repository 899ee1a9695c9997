package health

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
)

// Pinger is implemented by the database and Redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes p. A failing critical dependency reports down; any other
// failure only degrades the service.
func PingCheck(p Pinger, critical bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			status := StatusDegraded
			if critical {
				status = StatusDown
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// BreakerCheck reports an open breaker as degraded.
func BreakerCheck(state func() resilience.State) Check {
	return func(ctx context.Context) ComponentHealth {
		switch s := state(); s {
		case resilience.StateClosed:
			return ComponentHealth{Status: StatusUp}
		default:
			return ComponentHealth{Status: StatusDegraded, Message: "circuit " + s.String()}
		}
	}
}

// FreshnessCheck degrades when nothing has been published yet or the latest
// publication is older than maxAge. A zero maxAge only checks presence.
func FreshnessCheck(published func(ctx context.Context) (time.Time, error), maxAge time.Duration) Check {
	return func(ctx context.Context) ComponentHealth {
		at, err := published(ctx)
		if err != nil {
			return ComponentHealth{Status: StatusDegraded, Message: err.Error()}
		}
		if age := time.Since(at); maxAge > 0 && age > maxAge {
			return ComponentHealth{Status: StatusDegraded, Message: "last published " + age.Round(time.Second).String() + " ago"}
		}
		return ComponentHealth{Status: StatusUp}
	}
}
