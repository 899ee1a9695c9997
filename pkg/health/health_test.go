package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReportTakesWorstStatus(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	bad := pingFunc(func(context.Context) error { return errors.New("refused") })

	c := NewChecker()
	c.Register("store", PingCheck(ok, true))
	c.Register("redis", PingCheck(bad, false))
	if r := c.Run(context.Background()); r.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", r.Status)
	}

	c.Register("store", PingCheck(bad, true))
	if r := c.Run(context.Background()); r.Status != StatusDown {
		t.Errorf("status = %s, want down", r.Status)
	}
}

func TestReadyHandler(t *testing.T) {
	bad := pingFunc(func(context.Context) error { return errors.New("refused") })
	tests := []struct {
		name  string
		check Check
		want  int
	}{
		{"breaker closed", BreakerCheck(func() resilience.State { return resilience.StateClosed }), http.StatusOK},
		{"breaker open degrades only", BreakerCheck(func() resilience.State { return resilience.StateOpen }), http.StatusOK},
		{"critical store down", PingCheck(bad, true), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			c.Register("probe", tt.check)
			rec := httptest.NewRecorder()
			c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestFreshnessCheck(t *testing.T) {
	none := func(context.Context) (time.Time, error) { return time.Time{}, errors.New("no snapshot published") }
	old := func(context.Context) (time.Time, error) { return time.Now().Add(-3 * time.Hour), nil }
	fresh := func(context.Context) (time.Time, error) { return time.Now().Add(-time.Minute), nil }

	tests := []struct {
		name   string
		check  Check
		status Status
	}{
		{"nothing published", FreshnessCheck(none, time.Hour), StatusDegraded},
		{"stale", FreshnessCheck(old, time.Hour), StatusDegraded},
		{"fresh", FreshnessCheck(fresh, time.Hour), StatusUp},
		{"no max age", FreshnessCheck(old, 0), StatusUp},
	}
	for _, tt := range tests {
		if got := tt.check(context.Background()); got.Status != tt.status {
			t.Errorf("%s: status = %s (%s), want %s", tt.name, got.Status, got.Message, tt.status)
		}
	}
}
