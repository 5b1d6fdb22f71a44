// Package driver checks the shadow tracker against the reference oracle.
//
// For each operation a Session asks its model for the expected verdict,
// applies the operation to the tracker, compares the two, and only then lets
// the model commit. Any disagreement is a bug in one of them.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/joshuapare/shadowkit/shadow"
	"github.com/joshuapare/shadowkit/shadow/oracle"
	"github.com/joshuapare/shadowkit/shadow/verify"
)

// ErrSessionFailed is returned by Step after a previous step failed.
var ErrSessionFailed = errors.New("driver: session already failed")

// Model predicts verdicts and advances once a verdict is confirmed.
// *oracle.Oracle is the reference implementation.
type Model interface {
	shadow.Predictor
	Commit(op shadow.Op) error
}

// Options configures a Session.
type Options struct {
	// Strict expects every operation to succeed, whatever the model
	// predicts. Used with sequences made only of valid operations.
	Strict bool

	// CheckInvariants verifies tracker/model consistency after every step.
	CheckInvariants bool

	// Logger receives per-step debug records. Nil discards them.
	Logger *slog.Logger

	// Model replaces the default oracle. CheckInvariants is ignored unless
	// the model is an *oracle.Oracle.
	Model Model
}

// MismatchError reports a step where tracker and model disagreed.
type MismatchError struct {
	Step int
	Op   shadow.Op
	Want error // nil means success was expected
	Got  error
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("step %d: %v: expected %s, got %s", e.Step, e.Op, verdict(e.Want), verdict(e.Got))
}

// InvariantError reports a step after which the structures were inconsistent.
type InvariantError struct {
	Step int
	Op   shadow.Op
	Err  error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("step %d: after %v: %v", e.Step, e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

func verdict(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}

// Result is the outcome of one step.
type Result struct {
	Step    int
	Op      shadow.Op
	Err     error // tracker verdict
	Modeled bool  // whether the model predicted this verdict
}

// Session drives one tracker and one model in lockstep.
//
// NOT thread-safe.
type Session struct {
	heap   *shadow.Heap
	model  Model
	oracle *oracle.Oracle
	opts   Options
	log    *slog.Logger
	step   int
	failed bool
	report Report
}

// NewSession creates a fresh tracker and model over layout.
func NewSession(layout shadow.Layout, opts Options) (*Session, error) {
	t, err := shadow.New(layout)
	if err != nil {
		return nil, err
	}
	s := &Session{heap: shadow.NewHeap(t), opts: opts, report: newReport()}
	if opts.Model != nil {
		s.model = opts.Model
		s.oracle, _ = opts.Model.(*oracle.Oracle)
	} else {
		o, err := oracle.New(layout)
		if err != nil {
			return nil, err
		}
		s.model, s.oracle = o, o
	}
	s.log = opts.Logger
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

// Tracker returns the tracker under test.
func (s *Session) Tracker() *shadow.Tracker { return s.heap.Tracker() }

// Heap returns the address-only free wrapper around the tracker.
func (s *Session) Heap() *shadow.Heap { return s.heap }

// Oracle returns the reference oracle, or nil when a custom model is used.
func (s *Session) Oracle() *oracle.Oracle { return s.oracle }

// Report returns the statistics gathered so far.
func (s *Session) Report() Report { return s.report.clone() }

// Step predicts, applies and compares one operation. A non-nil error means
// the session found a disagreement (or an invariant violation) and is done.
func (s *Session) Step(op shadow.Op) (Result, error) {
	if s.failed {
		return Result{}, ErrSessionFailed
	}
	s.step++
	res := Result{Step: s.step, Op: op}

	want := s.model.Predict(op)
	res.Modeled = !errors.Is(want, oracle.ErrNotModeled)
	if !res.Modeled {
		want = nil
	}

	got := s.heap.Apply(op)
	res.Err = got
	s.report.record(op, got)

	s.log.Debug("step", "step", s.step, "op", op.String(), "want", verdict(want), "got", verdict(got), "modeled", res.Modeled)

	if res.Modeled && !shadow.SameVerdict(want, got) {
		s.failed = true
		return res, &MismatchError{Step: s.step, Op: op, Want: want, Got: got}
	}
	if s.opts.Strict && got != nil {
		s.failed = true
		return res, &MismatchError{Step: s.step, Op: op, Got: got}
	}

	if res.Modeled && got == nil {
		if err := s.model.Commit(op); err != nil {
			s.failed = true
			return res, fmt.Errorf("driver: step %d: %w", s.step, err)
		}
	}

	if s.opts.CheckInvariants && s.oracle != nil {
		if err := verify.AllInvariants(s.Tracker(), s.oracle.StackPointer(), s.oracle.Allocations()); err != nil {
			s.failed = true
			return res, &InvariantError{Step: s.step, Op: op, Err: err}
		}
	}
	return res, nil
}

// Run drives ops through a fresh session and returns its report. The
// context is checked between steps.
func Run(ctx context.Context, layout shadow.Layout, ops iter.Seq[shadow.Op], opts Options) (Report, error) {
	s, err := NewSession(layout, opts)
	if err != nil {
		return Report{}, err
	}
	for op := range ops {
		if err := ctx.Err(); err != nil {
			return s.Report(), err
		}
		if _, err := s.Step(op); err != nil {
			return s.Report(), err
		}
	}
	return s.Report(), nil
}
