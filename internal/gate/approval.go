package gate

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/tui"
)

// Approver asks the operator whether a request may proceed.
type Approver interface {
	Approve(ctx context.Context, summary string) (bool, error)
}

// TerminalApprover prompts on the controlling terminal, one request at a time.
type TerminalApprover struct {
	mu  sync.Mutex
	in  io.Reader
	out io.Writer
}

// NewTerminalApprover prompts on stdin/stdout.
func NewTerminalApprover() *TerminalApprover {
	return &TerminalApprover{in: os.Stdin, out: os.Stdout}
}

func (a *TerminalApprover) Approve(ctx context.Context, summary string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return tui.Confirm(ctx, a.in, a.out, "Accept incoming request?", summary)
}

// Gate runs the rate limiter then, when manual approval is on, the approver.
type Gate struct {
	limiter  *RateLimiter
	approver Approver

	mu     sync.RWMutex
	manual bool
}

// New builds a gate. approver may be nil when manual approval is never enabled.
func New(limiter *RateLimiter, approver Approver, manual bool) *Gate {
	return &Gate{limiter: limiter, approver: approver, manual: manual}
}

// SetManual toggles manual approval at runtime.
func (g *Gate) SetManual(manual bool) {
	g.mu.Lock()
	g.manual = manual
	g.mu.Unlock()
}

// Limiter returns the rate limiter for runtime updates.
func (g *Gate) Limiter() *RateLimiter {
	return g.limiter
}

// Admit returns nil when the request may be dispatched upstream.
func (g *Gate) Admit(ctx context.Context, summary string) error {
	if g == nil {
		return nil
	}
	if g.limiter != nil {
		if err := g.limiter.Check(ctx); err != nil {
			return err
		}
	}
	g.mu.RLock()
	manual := g.manual
	g.mu.RUnlock()
	if !manual || g.approver == nil {
		return nil
	}
	ok, err := g.approver.Approve(ctx, summary)
	if err != nil {
		return err
	}
	if !ok {
		return interfaces.NewRejected("Request rejected")
	}
	return nil
}
