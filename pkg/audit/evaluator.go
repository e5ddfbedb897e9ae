package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andrej220/secuaudit/pkg/executor"
)

// Evaluator runs checks through one backend and classifies their outcomes.
type Evaluator struct {
	backend executor.Backend
	timeout time.Duration
	diag    Diagnostics
}

type Option func(*Evaluator)

// WithTimeout sets the per-check timeout. Zero keeps executor.DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithDiagnostics(d Diagnostics) Option {
	return func(e *Evaluator) {
		if d != nil {
			e.diag = d
		}
	}
}

func NewEvaluator(backend executor.Backend, opts ...Option) *Evaluator {
	e := &Evaluator{
		backend: backend,
		timeout: executor.DefaultTimeout,
		diag:    Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates checks sequentially and returns one result per check, in input order.
func (e *Evaluator) Run(ctx context.Context, checks []Check) []Result {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		results = append(results, e.Evaluate(ctx, c))
	}
	return results
}

// Evaluate runs a single check. It never panics: a fault raised by the
// backend is converted into an ERROR result.
func (e *Evaluator) Evaluate(ctx context.Context, check Check) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = baseResult(check)
			res.Status = StatusError
			res.Error = fmt.Sprintf("internal fault while evaluating check: %v", r)
			e.diag.Emit(Event{Kind: EventInternalFault, CheckID: check.ID, Message: res.Error})
		}
	}()

	e.diag.Emit(Event{Kind: EventCheckStarted, CheckID: check.ID, Message: "running check " + check.Name})
	out := e.backend.Run(ctx, check.Command, e.timeout)
	res = Classify(check, out)
	e.diag.Emit(eventFor(res, out))
	return res
}

// Classify applies the precedence rules: transport error, then non-zero exit,
// then expectation mismatch, then pass. Stderr alone never changes the status.
func Classify(check Check, out executor.Outcome) Result {
	res := baseResult(check)

	switch {
	case out.TransportErr != nil:
		res.Status = StatusError
		res.Error = out.TransportErr.Error()
		if res.Error == "" {
			res.Error = "transport error"
		}
	case out.ExitStatus == nil:
		res.Status = StatusError
		res.Error = "command did not report an exit status"
	case *out.ExitStatus != 0:
		res.Status = StatusError
		res.ActualOutput = out.Stdout
		res.Error = out.Stderr
		if strings.TrimSpace(res.Error) == "" {
			res.Error = fmt.Sprintf("command exited with status %d", *out.ExitStatus)
		}
	case check.ExpectedOutput != "" && !strings.Contains(out.Stdout, check.ExpectedOutput):
		res.Status = StatusFail
		res.ActualOutput = out.Stdout
	default:
		res.Status = StatusPass
		res.ActualOutput = out.Stdout
	}
	return res
}

func baseResult(check Check) Result {
	return Result{
		RuleID:         check.ID,
		Name:           check.Name,
		ExpectedOutput: check.ExpectedOutput,
		Remediation:    check.Remediation,
	}
}

func eventFor(res Result, out executor.Outcome) Event {
	ev := Event{CheckID: res.RuleID}
	switch {
	case res.Status == StatusPass:
		ev.Kind, ev.Message = EventPassed, "check passed"
	case res.Status == StatusFail:
		ev.Kind, ev.Message = EventFailed, fmt.Sprintf("expected %q not found in output", res.ExpectedOutput)
	case out.TransportErr != nil:
		ev.Kind, ev.Message = EventTransportError, res.Error
	default:
		ev.Kind, ev.Message = EventExecutionError, res.Error
	}
	return ev
}
