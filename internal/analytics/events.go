package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/logger"
)

type EventType string

const (
	EventRecomputeRequested EventType = "recompute_requested"
	EventSnapshotPublished  EventType = "snapshot_published"
)

// RecomputeRequested asks for a batch run, typically after new votes were
// imported by the browsing application.
type RecomputeRequested struct {
	Type        EventType `json:"type"`
	RequestID   string    `json:"requestId"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// SnapshotPublished is emitted after a run's snapshot became current.
type SnapshotPublished struct {
	Type        EventType `json:"type"`
	SnapshotID  string    `json:"snapshotId"`
	Seq         int64     `json:"seq"`
	RunID       string    `json:"runId"`
	Artifacts   []string  `json:"artifacts"`
	Variance    []float64 `json:"variance"`
	PublishedAt time.Time `json:"publishedAt"`
}

// HandleRecompute consumes recompute requests. Undecodable messages are
// dropped; a failed run is returned so the consumer redelivers it.
func HandleRecompute(s *Service) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[RecomputeRequested](value)
		if err != nil || req.Type != EventRecomputeRequested {
			s.logger.Error("dropping malformed recompute request", "key", string(key), "error", err)
			s.countEvent("in", "malformed")
			return nil
		}
		ctx = logger.WithRequestID(ctx, req.RequestID)
		report, err := s.Recompute(ctx)
		if err != nil {
			s.countEvent("in", statusError)
			if errors.Is(err, apperrors.ErrInvalidInput) {
				return nil
			}
			return err
		}
		s.countEvent("in", "ok")
		logger.FromContext(ctx).Info("recompute request handled",
			"reason", req.Reason,
			"status", report.Status,
			"snapshot_id", report.SnapshotID,
		)
		return nil
	}
}

// HandleSnapshotPublished drops cached reads when any instance publishes.
func HandleSnapshotPublished(c *cache.Cache) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SnapshotPublished](value)
		if err != nil || event.Type != EventSnapshotPublished {
			return nil
		}
		return c.Invalidate(ctx)
	}
}

func (s *Service) countEvent(direction, status string) {
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(direction, status).Inc()
	}
}
