// Package pipeline provides an optimistic controller for a staged kanban board.
//
// A Board holds two lists of items: the authoritative list last returned by the remote store and the
// displayed list the user sees. Moving an item changes the displayed list immediately and confirms the
// new stage with the store in the background. Every move keeps its own snapshot of the board as it was
// right before the move, so a rejected confirmation only undoes that move and never the other moves
// issued around it.
//
// Only stage membership is persisted. Reordering an item inside its stage is a display concern and never
// reaches the store.
//
// Fresh authoritative lists are reconciled through Reconcile. While confirmations are outstanding the
// displayed list is left alone and the newest authoritative list is applied once the last confirmation
// settles, so an optimistic move is never visually overwritten and then replayed.
//
// Stage totals are a pure function of the displayed list and are recomputed on every call.
package pipeline
