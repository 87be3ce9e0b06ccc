package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/session"
)

func TestRateLimiterDisabled(t *testing.T) {
	state := session.New(session.TierIndividual)
	r := NewRateLimiter(state, 0, false)
	for i := 0; i < 3; i++ {
		if err := r.Check(context.Background()); err != nil {
			t.Fatalf("Check returned %v", err)
		}
	}
	if !state.LastRequestAt().IsZero() {
		t.Fatal("disabled limiter must not track requests")
	}
}

func TestRateLimiterFailMode(t *testing.T) {
	state := session.New(session.TierIndividual)
	r := NewRateLimiter(state, time.Hour, false)

	if err := r.Check(context.Background()); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	admittedAt := state.LastRequestAt()
	if admittedAt.IsZero() {
		t.Fatal("expected lastRequestAt to be recorded")
	}

	err := r.Check(context.Background())
	gwErr, ok := interfaces.AsGatewayError(err)
	if !ok || gwErr.Kind != interfaces.KindRateLimited || gwErr.StatusCode != 429 {
		t.Fatalf("expected RateLimited, got %v", err)
	}
	if !state.LastRequestAt().Equal(admittedAt) {
		t.Fatal("rejected request must not move lastRequestAt")
	}
}

func TestRateLimiterWaitMode(t *testing.T) {
	state := session.New(session.TierIndividual)
	window := 50 * time.Millisecond
	r := NewRateLimiter(state, window, true)

	start := time.Now()
	if err := r.Check(context.Background()); err != nil {
		t.Fatalf("first Check: %v", err)
	}
	if err := r.Check(context.Background()); err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second request was not delayed (elapsed %v)", elapsed)
	}
	if state.LastRequestAt().Sub(start) < 40*time.Millisecond {
		t.Fatal("lastRequestAt must be recorded after the wait")
	}
}

func TestRateLimiterWaitHonorsCancellation(t *testing.T) {
	r := NewRateLimiter(session.New(""), time.Hour, true)
	if err := r.Check(context.Background()); err != nil {
		t.Fatalf("first Check: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Check(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRateLimiterUpdate(t *testing.T) {
	r := NewRateLimiter(session.New(""), time.Hour, false)
	_ = r.Check(context.Background())
	r.Update(0, false)
	if err := r.Check(context.Background()); err != nil {
		t.Fatalf("disabled limiter rejected: %v", err)
	}
}

type stubApprover struct {
	answer bool
	calls  int
}

func (s *stubApprover) Approve(context.Context, string) (bool, error) {
	s.calls++
	return s.answer, nil
}

func TestGateApproval(t *testing.T) {
	approver := &stubApprover{answer: false}
	g := New(NewRateLimiter(session.New(""), 0, false), approver, true)

	err := g.Admit(context.Background(), "POST /v1/messages")
	gwErr, ok := interfaces.AsGatewayError(err)
	if !ok || gwErr.Kind != interfaces.KindRejected || gwErr.StatusCode != 403 {
		t.Fatalf("expected Rejected, got %v", err)
	}

	approver.answer = true
	if err = g.Admit(context.Background(), "POST /v1/messages"); err != nil {
		t.Fatalf("approved request failed: %v", err)
	}

	g.SetManual(false)
	if err = g.Admit(context.Background(), "POST /v1/messages"); err != nil {
		t.Fatalf("Admit without manual mode: %v", err)
	}
	if approver.calls != 2 {
		t.Fatalf("approver calls = %d, want 2", approver.calls)
	}
}

func TestGateRateLimitRunsBeforeApproval(t *testing.T) {
	approver := &stubApprover{answer: true}
	g := New(NewRateLimiter(session.New(""), time.Hour, false), approver, true)
	_ = g.Admit(context.Background(), "first")
	_ = g.Admit(context.Background(), "second")
	if approver.calls != 1 {
		t.Fatalf("throttled request reached the approver (calls = %d)", approver.calls)
	}
}
