// Package script loads YAML scenarios (a layout, a list of operations and
// their expected verdicts) and replays them through the driver.
//
// Example scenario:
//
//	mem_size: 655360
//	max_stack_size: 1024
//	steps:
//	  - {op: malloc, addr: 0x1000, len: 32}
//	  - {op: read, addr: 0x1000, len: 4, expect: invalid-read}
//	  - {op: write, addr: 0x1000, len: 4, expect: ok}
//	  - {op: free, addr: 0x1000}
//
// Frees take only an address; the length comes from the matching malloc, so
// a free step with len is rejected.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/shadowkit/shadow"
	"github.com/joshuapare/shadowkit/shadow/driver"
)

// ExpectOK is the expect value for an operation that must succeed.
const ExpectOK = "ok"

// Step is one scripted operation.
type Step struct {
	Op     string `yaml:"op"`
	Addr   uint64 `yaml:"addr,omitempty"`
	Len    uint64 `yaml:"len,omitempty"`
	Expect string `yaml:"expect,omitempty"`
}

// Script is a parsed scenario.
type Script struct {
	Name         string `yaml:"name,omitempty"`
	MemSize      uint64 `yaml:"mem_size"`
	MaxStackSize uint64 `yaml:"max_stack_size"`
	Steps        []Step `yaml:"steps"`
}

// Layout returns the scenario's address space.
func (s *Script) Layout() shadow.Layout {
	return shadow.Layout{MemSize: s.MemSize, MaxStackSize: s.MaxStackSize}
}

// Ops converts the steps to operations.
func (s *Script) Ops() ([]shadow.Op, error) {
	ops := make([]shadow.Op, 0, len(s.Steps))
	for i, st := range s.Steps {
		op, err := st.op()
		if err != nil {
			return nil, fmt.Errorf("script: step %d: %w", i+1, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (st Step) op() (shadow.Op, error) {
	k, err := shadow.ParseOpKind(st.Op)
	if err != nil {
		return shadow.Op{}, err
	}
	if k == shadow.OpFree && st.Len != 0 {
		return shadow.Op{}, fmt.Errorf("free takes no len (got %d); it releases the whole allocation at addr", st.Len)
	}
	return shadow.Op{Kind: k, Addr: st.Addr, Len: st.Len}, nil
}

// expected returns the expected kind; ok reports whether an expectation was
// given at all. A zero kind with ok set means success is expected.
func (st Step) expected() (shadow.Kind, bool, error) {
	switch st.Expect {
	case "":
		return 0, false, nil
	case ExpectOK:
		return 0, true, nil
	}
	k, err := shadow.ParseKind(st.Expect)
	if err != nil {
		return 0, false, err
	}
	return k, true, nil
}

// Validate checks the layout, operations and expectations.
func (s *Script) Validate() error {
	if err := s.Layout().Validate(); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	if len(s.Steps) == 0 {
		return errors.New("script: no steps")
	}
	for i, st := range s.Steps {
		if _, err := st.op(); err != nil {
			return fmt.Errorf("script: step %d: %w", i+1, err)
		}
		if _, _, err := st.expected(); err != nil {
			return fmt.Errorf("script: step %d: %w", i+1, err)
		}
	}
	return nil
}

// Load parses and validates a scenario.
func Load(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("script: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile parses and validates the scenario at path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// ExpectationError reports a step whose verdict differed from the script.
type ExpectationError struct {
	Step   int
	Op     shadow.Op
	Expect string
	Got    error
}

func (e *ExpectationError) Error() string {
	got := ExpectOK
	if e.Got != nil {
		got = e.Got.Error()
	}
	return fmt.Sprintf("step %d: %v: expected %s, got %s", e.Step, e.Op, e.Expect, got)
}

// Outcome is the replayed result of one step.
type Outcome struct {
	driver.Result
	Expect string
}

// Replay runs the scenario through a fresh driver session. It stops at the
// first disagreement between tracker and oracle (*driver.MismatchError) or
// between tracker and script (*ExpectationError). The session is returned
// so callers can inspect final state.
func Replay(ctx context.Context, s *Script, opts driver.Options) ([]Outcome, *driver.Session, error) {
	sess, err := driver.NewSession(s.Layout(), opts)
	if err != nil {
		return nil, nil, err
	}
	ops, err := s.Ops()
	if err != nil {
		return nil, sess, err
	}
	outcomes := make([]Outcome, 0, len(ops))
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return outcomes, sess, err
		}
		res, err := sess.Step(op)
		outcomes = append(outcomes, Outcome{Result: res, Expect: s.Steps[i].Expect})
		if err != nil {
			return outcomes, sess, err
		}
		want, ok, _ := s.Steps[i].expected()
		if ok && shadow.KindOf(res.Err) != want {
			return outcomes, sess, &ExpectationError{Step: i + 1, Op: op, Expect: s.Steps[i].Expect, Got: res.Err}
		}
	}
	return outcomes, sess, nil
}
