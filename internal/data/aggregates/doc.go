// Package aggregates implements the progression write boundary.
//
// Implementations compose the table repos under internal/data/repos and own the
// transaction of every gating write: lock, check, compare-and-set, outbox.
package aggregates
