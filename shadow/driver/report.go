package driver

import (
	"maps"

	"github.com/joshuapare/shadowkit/shadow"
)

// Report summarizes a session.
type Report struct {
	Steps    int            `json:"steps"`
	Accepted int            `json:"accepted"`
	Ops      map[string]int `json:"ops"`
	Rejected map[string]int `json:"rejected"`

	byKind map[shadow.Kind]int
	byOp   map[shadow.OpKind]int
}

func newReport() Report {
	return Report{
		Ops:      make(map[string]int),
		Rejected: make(map[string]int),
		byKind:   make(map[shadow.Kind]int),
		byOp:     make(map[shadow.OpKind]int),
	}
}

func (r *Report) record(op shadow.Op, err error) {
	r.Steps++
	r.byOp[op.Kind]++
	r.Ops[op.Kind.String()]++
	if err == nil {
		r.Accepted++
		return
	}
	k := shadow.KindOf(err)
	r.byKind[k]++
	r.Rejected[k.String()]++
}

// RejectedBy returns how many operations were rejected with kind k.
func (r Report) RejectedBy(k shadow.Kind) int { return r.byKind[k] }

// OpsOf returns how many operations of kind k were issued.
func (r Report) OpsOf(k shadow.OpKind) int { return r.byOp[k] }

// Merge adds other's counts to r.
func (r *Report) Merge(other Report) {
	if r.Ops == nil {
		*r = newReport()
	}
	r.Steps += other.Steps
	r.Accepted += other.Accepted
	for k, v := range other.byKind {
		r.byKind[k] += v
		r.Rejected[k.String()] += v
	}
	for k, v := range other.byOp {
		r.byOp[k] += v
		r.Ops[k.String()] += v
	}
}

func (r Report) clone() Report {
	return Report{
		Steps:    r.Steps,
		Accepted: r.Accepted,
		Ops:      maps.Clone(r.Ops),
		Rejected: maps.Clone(r.Rejected),
		byKind:   maps.Clone(r.byKind),
		byOp:     maps.Clone(r.byOp),
	}
}
