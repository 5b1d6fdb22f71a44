package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/shadowkit/shadow"
	"github.com/joshuapare/shadowkit/shadow/opseq"
	"github.com/joshuapare/shadowkit/shadow/oracle"
)

var smallLayout = shadow.Layout{MemSize: 2048, MaxStackSize: 128}

func seqConfig(mode opseq.Mode) opseq.Config {
	return opseq.Config{Layout: smallLayout, Mode: mode, MaxOps: 80, MaxLen: 96}
}

func TestRun_ValidSequencesAgree(t *testing.T) {
	for seed := range uint64(100) {
		seq, err := opseq.FromSeed(seqConfig(opseq.ModeValid), seed)
		require.NoError(t, err)

		rep, err := Run(context.Background(), smallLayout, seq.All(), Options{Strict: true, CheckInvariants: true})
		require.NoError(t, err, "seed %d", seed)
		require.Equal(t, rep.Steps, rep.Accepted)
	}
}

func TestRun_BuggySequencesAgree(t *testing.T) {
	var total Report
	for seed := range uint64(200) {
		seq, err := opseq.FromSeed(seqConfig(opseq.ModeBuggy), seed)
		require.NoError(t, err)

		rep, err := Run(context.Background(), smallLayout, seq.All(), Options{CheckInvariants: true})
		require.NoError(t, err, "seed %d", seed)
		total.Merge(rep)
	}
	require.Positive(t, total.Accepted)
	require.Positive(t, total.RejectedBy(shadow.KindOutOfBounds))
	require.Positive(t, total.RejectedBy(shadow.KindInvalidFree))
	require.Equal(t, total.Steps, total.Accepted+sum(total.Rejected))
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

func TestSession_Scenario(t *testing.T) {
	s, err := NewSession(smallLayout, Options{CheckInvariants: true})
	require.NoError(t, err)

	steps := []struct {
		op   shadow.Op
		kind shadow.Kind
		ok   bool
	}{
		{op: shadow.Malloc(0x200, 32), ok: true},
		{op: shadow.Read(0x200, 4), kind: shadow.KindInvalidRead},
		{op: shadow.Write(0x200, 16), ok: true},
		{op: shadow.Read(0x200, 16), ok: true},
		{op: shadow.Read(0x200, 17), kind: shadow.KindInvalidRead},
		{op: shadow.Malloc(0x210, 32), kind: shadow.KindDoubleMalloc},
		{op: shadow.Free(0x200, 0), ok: true},
		{op: shadow.Free(0x200, 0), kind: shadow.KindInvalidFree},
		{op: shadow.Write(0x200, 1), kind: shadow.KindInvalidWrite},
		{op: shadow.GrowStack(64), ok: true},
		{op: shadow.Write(64, 64), ok: true},
		{op: shadow.ShrinkStack(65), kind: shadow.KindOutOfBounds},
	}
	for i, st := range steps {
		res, err := s.Step(st.op)
		require.NoError(t, err, "step %d", i)
		require.Equal(t, i+1, res.Step)
		if st.ok {
			require.NoError(t, res.Err, "step %d", i)
			continue
		}
		require.Equal(t, st.kind, shadow.KindOf(res.Err), "step %d", i)
	}

	require.Equal(t, uint64(64), s.Oracle().StackPointer())
	require.Empty(t, s.Oracle().Allocations())

	rep := s.Report()
	require.Equal(t, len(steps), rep.Steps)
	require.Equal(t, 2, rep.RejectedBy(shadow.KindInvalidRead))
	require.Equal(t, 3, rep.OpsOf(shadow.OpRead))
	require.Equal(t, 1, rep.Rejected["invalid-free"])
}

func TestSession_ReadsAreNotModeled(t *testing.T) {
	s, err := NewSession(smallLayout, Options{})
	require.NoError(t, err)

	res, err := s.Step(shadow.Read(0x300, 4))
	require.NoError(t, err)
	require.False(t, res.Modeled)
	require.ErrorIs(t, res.Err, shadow.ErrInvalidRead)

	res, err = s.Step(shadow.Malloc(0x300, 4))
	require.NoError(t, err)
	require.True(t, res.Modeled)
}

func TestSession_StrictRejectsFailures(t *testing.T) {
	s, err := NewSession(smallLayout, Options{Strict: true})
	require.NoError(t, err)

	_, err = s.Step(shadow.Read(0x300, 4))
	var mm *MismatchError
	require.ErrorAs(t, err, &mm)
	require.NoError(t, mm.Want)
	require.ErrorIs(t, mm.Got, shadow.ErrInvalidRead)
	require.Equal(t, "step 1: read 0x300 4: expected ok, got invalid-read at 0x300 (4 bytes)", mm.Error())

	_, err = s.Step(shadow.Malloc(0x300, 4))
	require.ErrorIs(t, err, ErrSessionFailed)
}

// acceptAll predicts success for everything, so it disagrees with the
// tracker on the first rejected operation.
type acceptAll struct{ commits int }

func (m *acceptAll) Predict(shadow.Op) error { return nil }

func (m *acceptAll) Commit(shadow.Op) error {
	m.commits++
	return nil
}

func TestSession_DetectsMismatch(t *testing.T) {
	model := &acceptAll{}
	s, err := NewSession(smallLayout, Options{Model: model, CheckInvariants: true})
	require.NoError(t, err)
	require.Nil(t, s.Oracle())

	_, err = s.Step(shadow.Malloc(0x200, 8))
	require.NoError(t, err)
	require.Equal(t, 1, model.commits)

	res, err := s.Step(shadow.Malloc(0x200, 8))
	var mm *MismatchError
	require.ErrorAs(t, err, &mm)
	require.Equal(t, 2, mm.Step)
	require.NoError(t, mm.Want)
	require.ErrorIs(t, mm.Got, shadow.ErrDoubleMalloc)
	require.ErrorIs(t, res.Err, shadow.ErrDoubleMalloc)
	require.Equal(t, 1, model.commits, "rejected steps are never committed")
}

// staleModel commits nothing, so its allocation list drifts from the tracker.
type staleModel struct{ *oracle.Oracle }

func (staleModel) Commit(shadow.Op) error { return nil }

func TestSession_DetectsDivergenceOnLaterStep(t *testing.T) {
	o, err := oracle.New(smallLayout)
	require.NoError(t, err)
	s, err := NewSession(smallLayout, Options{Model: staleModel{o}})
	require.NoError(t, err)

	_, err = s.Step(shadow.Malloc(0x200, 8))
	require.NoError(t, err)

	// The model never saw the first malloc and expects this one to succeed.
	_, err = s.Step(shadow.Malloc(0x204, 8))
	var mm *MismatchError
	require.ErrorAs(t, err, &mm)
	require.NoError(t, mm.Want)
	require.Equal(t, shadow.KindDoubleMalloc, shadow.KindOf(mm.Got))
}

func TestSession_InvariantViolation(t *testing.T) {
	s, err := NewSession(smallLayout, Options{CheckInvariants: true})
	require.NoError(t, err)

	_, err = s.Step(shadow.Malloc(0x200, 8))
	require.NoError(t, err)

	// Drop the record behind the session's back.
	require.True(t, s.Oracle().Registry().Remove(0x200))

	_, err = s.Step(shadow.GrowStack(1))
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	require.Equal(t, 2, inv.Step)
}

func TestNewSession_BadLayout(t *testing.T) {
	_, err := NewSession(shadow.Layout{}, Options{})
	require.ErrorIs(t, err, shadow.ErrBadLayout)
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ops := []shadow.Op{shadow.Malloc(0x200, 8)}
	rep, err := Run(ctx, smallLayout, func(yield func(shadow.Op) bool) {
		for _, op := range ops {
			if !yield(op) {
				return
			}
		}
	}, Options{})
	require.True(t, errors.Is(err, context.Canceled))
	require.Zero(t, rep.Steps)
}

func TestReport_Merge(t *testing.T) {
	a := newReport()
	a.record(shadow.Malloc(0x200, 8), nil)
	a.record(shadow.Free(0x300, 0), &shadow.AccessError{Kind: shadow.KindInvalidFree, Addr: 0x300})

	b := newReport()
	b.record(shadow.Free(0x400, 0), &shadow.AccessError{Kind: shadow.KindInvalidFree, Addr: 0x400})

	var total Report
	total.Merge(a)
	total.Merge(b)

	require.Equal(t, 3, total.Steps)
	require.Equal(t, 1, total.Accepted)
	require.Equal(t, 2, total.RejectedBy(shadow.KindInvalidFree))
	require.Equal(t, 2, total.OpsOf(shadow.OpFree))
	require.Equal(t, map[string]int{"malloc": 1, "free": 2}, total.Ops)
	require.Equal(t, map[string]int{"invalid-free": 2}, total.Rejected)

	// Reports handed out are copies.
	c := a.clone()
	c.record(shadow.Malloc(0x500, 1), nil)
	require.Equal(t, 2, a.Steps)
	require.Equal(t, 1, a.Ops["malloc"])
}
