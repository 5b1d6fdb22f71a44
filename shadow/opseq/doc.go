// Package opseq generates operation sequences for differential testing of
// the shadow tracker.
//
// A Sequence is parameterized by a Config and either a seed or raw fuzz
// input. It holds no state between runs: every call to All regenerates the
// same operations from the start, picking addresses from a private oracle
// that follows the operations it emits.
//
//	seq, err := opseq.FromSeed(opseq.DefaultConfig(), 42)
//	if err != nil {
//	    return err
//	}
//	for op := range seq.All() {
//	    fmt.Println(op)
//	}
package opseq
