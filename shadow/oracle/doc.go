// Package oracle is an independent reference model of the shadow tracker.
//
// Where the tracker keeps one state per byte, the oracle keeps only the set
// of live allocations (address, length), ordered by address, plus a stack
// pointer. From that it recomputes the verdicts of allocate, free and stack
// operations:
//
//   - allocate fails out-of-bounds unless the range starts strictly above
//     the stack region and ends inside memory, and fails double-malloc when
//     any live allocation overlaps the half-open range.
//   - free succeeds only for an address where a live allocation starts, and
//     fails invalid-free otherwise.
//   - stack growth fails when it would pass address 0; shrinking fails when
//     it would pass the top of the stack region.
//
// Reads and writes depend on initialization state, which the registry does
// not hold; Predict returns ErrNotModeled for them.
//
// Predictions never change the oracle. A driver predicts, compares with the
// tracker, and only then calls Commit, so both models advance in lockstep.
package oracle
