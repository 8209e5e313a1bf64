// Package windowsync keeps an oracle store holding the state roots of the
// latest W finalized blocks of a ledger.
//
// A Synchronizer computes and applies one window change at a time: Bootstrap
// publishes the initial window, Advance publishes the roots that entered the
// window and then purges the ones that left it. The cursor only moves after
// both writes succeeded. A Loop drives the Synchronizer on a fixed interval
// from a single goroutine. A cycle that failed after it may have written is
// repeated toward the same target before any newer one is started, so no root
// outside the window is left behind.
package windowsync
