// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scaffold defines the contract satisfied by every replicated state
// node, leaf or composite, and the engine that derives a composite's
// implementation from the implementations of its named children.
//
// The contract guarantees that two replicas which have seen the same set of
// deltas converge to the same value regardless of delivery order, provided
// every implementation keeps ApplyDelta commutative, associative and
// idempotent. Verification is a pure predicate: it inspects the candidate
// against the surrounding composite state and the tree's parameters and
// never mutates anything.
package scaffold

// State is implemented by every node of a replicated state tree.
//
// Parent is the type of the tree's root composite; every node, at any
// depth, receives a pointer to the root so that verification can consult
// sibling state (e.g. a message log checking that an author is currently a
// member). Params is the read-only context fixed at tree creation, supplied
// top-down on every call rather than stored in the nodes.
type State[Parent, Params, Summary, Delta any] interface {
	// Verify checks that the node's current value is internally consistent
	// and that every record it holds is authorized. Implementations must
	// not mutate any state reachable from parent.
	Verify(parent *Parent, params *Params) error

	// Summarize produces the compact descriptor a peer needs to compute
	// what this node is missing. Equal values produce equal summaries, and
	// a summary never carries record contents, only identity and version
	// metadata.
	Summarize(parent *Parent, params *Params) Summary

	// Delta computes the smallest change set bringing a peer whose state
	// matches old up to this node's value. The boolean is false when the
	// peer is already current, in which case the returned delta is the
	// zero value.
	Delta(parent *Parent, params *Params, old *Summary) (Delta, bool)

	// ApplyDelta merges a delta into the node's value. The zero delta is a
	// no-op. A failed apply must leave the node's value unchanged.
	ApplyDelta(parent *Parent, params *Params, delta Delta) error
}
