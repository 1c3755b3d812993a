// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scaffold

import "fmt"

// Field is one named child of a composite, erased to the composite's own
// type parameters so the engine can iterate children of different types in
// a single slice. Build fields with Bind and keep them in a package-level
// slice: the slice's order is the composite's canonical field order and
// must never change for a given schema version.
type Field[Self, Params, Summary, Delta any] struct {
	Name string

	verify    func(*Self, *Params) error
	summarize func(*Self, *Params, *Summary)
	delta     func(*Self, *Params, *Summary, *Delta) bool
	apply     func(*Self, *Params, *Delta) error
}

// Bind wires one typed child into a composite. child locates the node
// inside the composite, summary and delta locate the child's slots inside
// the composite's summary and delta structs. The first two type parameters
// are given explicitly at the call site; the rest are inferred:
//
//	scaffold.Bind[Room, Params]("bans",
//		func(r *Room) *Bans                { return &r.Bans },
//		func(s *RoomSummary) *[]ids.ID     { return &s.BanIDs },
//		func(d *RoomDelta) *[]SignedBan    { return &d.Bans },
//	)
func Bind[
	Self, Params, Summary, Delta, S, D any,
	C State[Self, Params, S, D],
](
	name string,
	child func(*Self) C,
	summary func(*Summary) *S,
	delta func(*Delta) *D,
) Field[Self, Params, Summary, Delta] {
	return Field[Self, Params, Summary, Delta]{
		Name: name,
		verify: func(self *Self, params *Params) error {
			return child(self).Verify(self, params)
		},
		summarize: func(self *Self, params *Params, out *Summary) {
			*summary(out) = child(self).Summarize(self, params)
		},
		delta: func(self *Self, params *Params, old *Summary, out *Delta) bool {
			d, ok := child(self).Delta(self, params, summary(old))
			if ok {
				*delta(out) = d
			}
			return ok
		},
		apply: func(self *Self, params *Params, d *Delta) error {
			return child(self).ApplyDelta(self, params, *delta(d))
		},
	}
}

// VerifyFields runs every child's Verify in field order, short-circuiting
// on the first failure and qualifying the error with the child's name.
func VerifyFields[Self, Params, Summary, Delta any](
	self *Self,
	params *Params,
	fields []Field[Self, Params, Summary, Delta],
) error {
	for _, f := range fields {
		if err := f.verify(self, params); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

// SummarizeFields assembles the composite summary from every child's
// summary, field by field.
func SummarizeFields[Self, Params, Summary, Delta any](
	self *Self,
	params *Params,
	fields []Field[Self, Params, Summary, Delta],
) Summary {
	var out Summary
	for _, f := range fields {
		f.summarize(self, params, &out)
	}
	return out
}

// DeltaFields assembles the composite delta against a peer's summary. A
// child that reports no change leaves its slot at the zero value; the
// boolean is false only when every child is already current on the peer.
func DeltaFields[Self, Params, Summary, Delta any](
	self *Self,
	params *Params,
	old *Summary,
	fields []Field[Self, Params, Summary, Delta],
) (Delta, bool) {
	var out Delta
	changed := false
	for _, f := range fields {
		if f.delta(self, params, old, &out) {
			changed = true
		}
	}
	return out, changed
}

// ApplyFields merges a composite delta child-wise in field order. Every
// child's ApplyDelta runs even when its slot is the zero value, so children
// whose canonical form depends on sibling state re-canonicalize on every
// cycle. The first failure aborts the walk with a field-qualified error;
// callers that need all-or-nothing semantics apply to a scratch copy and
// swap on success.
func ApplyFields[Self, Params, Summary, Delta any](
	self *Self,
	params *Params,
	delta *Delta,
	fields []Field[Self, Params, Summary, Delta],
) error {
	for _, f := range fields {
		if err := f.apply(self, params, delta); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}
