// Package aggregates defines the write boundaries of the progression engine.
//
// Contracts here carry no persistence or transport detail. Every method is one
// atomic unit in which the gating invariants are checked and enforced.
package aggregates
