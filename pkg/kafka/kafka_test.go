package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
	"github.com/google/go-cmp/cmp"
	"github.com/segmentio/kafka-go"
)

type recomputeRequest struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason"`
}

// fakeReader serves msgs once, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		msg := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestMessageCarriesRequestID(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-7")
	msg, err := message(ctx, Event{Key: "vpa", Value: recomputeRequest{RequestID: "r1", Reason: "votes imported"}})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if string(msg.Key) != "vpa" || msg.Time.IsZero() {
		t.Errorf("message = %+v", msg)
	}
	if got := header(msg, RequestIDHeader); got != "req-7" {
		t.Errorf("request id header = %q", got)
	}
	got, err := DecodeJSON[recomputeRequest](msg.Value)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if diff := cmp.Diff(recomputeRequest{RequestID: "r1", Reason: "votes imported"}, got); diff != "" {
		t.Errorf("decoded (-want +got):\n%s", diff)
	}

	plain, err := message(context.Background(), Event{Key: "k", Value: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(plain.Headers) != 0 {
		t.Errorf("headers without request id = %v", plain.Headers)
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	if _, err := DecodeJSON[recomputeRequest]([]byte("not json")); err == nil {
		t.Error("expected error")
	}
}

func TestMessageRejectsUnencodable(t *testing.T) {
	if _, err := message(context.Background(), Event{Key: "k", Value: make(chan int)}); err == nil {
		t.Error("expected marshal error")
	}
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("flaky"), Headers: []kafka.Header{{Key: RequestIDHeader, Value: []byte("req-1")}}},
		{Offset: 2, Value: []byte("broken")},
		{Offset: 3, Value: []byte("fine")},
	}}

	var (
		mu       sync.Mutex
		attempts = map[string]int{}
		ids      = map[string]string{}
	)
	handler := func(ctx context.Context, _ []byte, value []byte) error {
		mu.Lock()
		defer mu.Unlock()
		v := string(value)
		attempts[v]++
		ids[v] = logger.RequestID(ctx)
		switch {
		case v == "flaky" && attempts[v] == 1:
			return errors.New("transient")
		case v == "broken":
			return errors.New("always fails")
		}
		return nil
	}

	c := newConsumer(reader, "recompute-requests", handler)
	c.retry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		reader.mu.Lock()
		n := len(reader.committed)
		reader.mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("committed %d of 3 messages", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(map[string]int{"flaky": 2, "broken": 2, "fine": 1}, attempts); diff != "" {
		t.Errorf("attempts (-want +got):\n%s", diff)
	}
	if ids["flaky"] != "req-1" || ids["fine"] != "" {
		t.Errorf("request ids = %v", ids)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, reader.committed); diff != "" {
		t.Errorf("committed (-want +got):\n%s", diff)
	}
	if !reader.closed {
		t.Error("reader not closed on shutdown")
	}
}
