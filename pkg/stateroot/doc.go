// Package stateroot defines the data model shared by the window synchronizer and
// its collaborators: finalized block state roots, inclusive block ranges, the
// synchronizer cursor and the error kinds surfaced by ledger and oracle adapters.
//
// Terminology
//   - Finalized block: a block guaranteed immutable going forward.
//   - Window: the trailing set of the latest W finalized block numbers whose roots
//     are published to the oracle store.
//   - Cursor: the last finalized block number the window was built around.
package stateroot
