// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package room implements the replicated state tree of one chat room: an
// owner-signed configuration, invitation-chained members, per-member
// profiles, a capped message log, an owner-signed upgrade pointer and a
// grow-only ban set. The composite's behavior is derived field-wise by the
// scaffold engine; adding a leaf means adding a struct field, its summary
// and delta slots, and one Bind line.
package room

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/roomstate/scaffold"
)

var _ scaffold.State[State, Parameters, Summary, Delta] = (*State)(nil)

// State is the composite root. Its value is fully determined by its
// children; nothing is stored outside them. The field order below is the
// canonical apply order: configuration first so caps are settled before
// they are enforced, members before the leaves that check membership, bans
// last so a ban issued by a member added in the same delta still verifies.
type State struct {
	Configuration  SignedConfiguration `serialize:"true" json:"configuration"`
	Members        Members             `serialize:"true" json:"members"`
	MemberInfo     MemberInfoLog       `serialize:"true" json:"memberInfo"`
	RecentMessages Messages            `serialize:"true" json:"recentMessages"`
	Upgrade        SignedUpgrade       `serialize:"true" json:"upgrade"`
	Bans           Bans                `serialize:"true" json:"bans"`
}

// Summary describes a replica's current contents compactly enough for a
// peer to compute what the replica is missing; it never carries record
// contents.
type Summary struct {
	Configuration     RevisionSummary     `serialize:"true" json:"configuration"`
	MemberRecords     []ids.ID            `serialize:"true" json:"memberRecords"`
	MemberInfoRecords []MemberInfoVersion `serialize:"true" json:"memberInfoRecords"`
	MessageIDs        []ids.ID            `serialize:"true" json:"messageIds"`
	Upgrade           RevisionSummary     `serialize:"true" json:"upgrade"`
	BanIDs            []ids.ID            `serialize:"true" json:"banIds"`
}

// Delta carries the records a peer is missing, child by child. An empty
// slot is a no-op for that child.
type Delta struct {
	Configuration []SignedConfiguration `serialize:"true" json:"configuration"`
	Members       []SignedMember        `serialize:"true" json:"members"`
	MemberInfo    []SignedMemberInfo    `serialize:"true" json:"memberInfo"`
	Messages      []SignedMessage       `serialize:"true" json:"messages"`
	Upgrade       []SignedUpgrade       `serialize:"true" json:"upgrade"`
	Bans          []SignedBan           `serialize:"true" json:"bans"`
}

var stateFields = []scaffold.Field[State, Parameters, Summary, Delta]{
	scaffold.Bind[State, Parameters]("configuration",
		func(s *State) *SignedConfiguration { return &s.Configuration },
		func(s *Summary) *RevisionSummary { return &s.Configuration },
		func(d *Delta) *[]SignedConfiguration { return &d.Configuration },
	),
	scaffold.Bind[State, Parameters]("members",
		func(s *State) *Members { return &s.Members },
		func(s *Summary) *[]ids.ID { return &s.MemberRecords },
		func(d *Delta) *[]SignedMember { return &d.Members },
	),
	scaffold.Bind[State, Parameters]("memberInfo",
		func(s *State) *MemberInfoLog { return &s.MemberInfo },
		func(s *Summary) *[]MemberInfoVersion { return &s.MemberInfoRecords },
		func(d *Delta) *[]SignedMemberInfo { return &d.MemberInfo },
	),
	scaffold.Bind[State, Parameters]("recentMessages",
		func(s *State) *Messages { return &s.RecentMessages },
		func(s *Summary) *[]ids.ID { return &s.MessageIDs },
		func(d *Delta) *[]SignedMessage { return &d.Messages },
	),
	scaffold.Bind[State, Parameters]("upgrade",
		func(s *State) *SignedUpgrade { return &s.Upgrade },
		func(s *Summary) *RevisionSummary { return &s.Upgrade },
		func(d *Delta) *[]SignedUpgrade { return &d.Upgrade },
	),
	scaffold.Bind[State, Parameters]("bans",
		func(s *State) *Bans { return &s.Bans },
		func(s *Summary) *[]ids.ID { return &s.BanIDs },
		func(d *Delta) *[]SignedBan { return &d.Bans },
	),
}

// NewState returns the state a room holds at creation: the default
// configuration and empty leaves. The owner is fixed in params and is a
// member implicitly, never through a record.
func NewState() *State {
	return &State{
		Configuration: DefaultConfiguration(),
	}
}

// Clone deep-copies the state. Mutating a clone never affects the
// original, which is what lets readers hold projections while the
// synchronization driver merges.
func (s *State) Clone() *State {
	out := *s
	out.Members.Records = append([]SignedMember(nil), s.Members.Records...)
	out.MemberInfo.Records = append([]SignedMemberInfo(nil), s.MemberInfo.Records...)
	out.RecentMessages.Records = append([]SignedMessage(nil), s.RecentMessages.Records...)
	out.Bans.Records = append([]SignedBan(nil), s.Bans.Records...)
	return &out
}

// canonicalize re-evaluates the leaves whose canonical form depends on
// sibling state, in dependency order, after every child has merged its part
// of a delta. This is what makes cross-leaf tombstone effects independent
// of which cycle a ban arrived in.
func (s *State) canonicalize(params *Parameters) {
	s.MemberInfo.retainAuthorized(s, params)
	s.RecentMessages.retainAuthorized(s, params)
	s.RecentMessages.truncate(s.Configuration.Configuration.MaxRecentMessages)
}

func (s *State) Verify(_ *State, params *Parameters) error {
	if err := params.Verify(); err != nil {
		return fmt.Errorf("%w: %s", scaffold.ErrMalformed, err)
	}
	return scaffold.VerifyFields(s, params, stateFields)
}

func (s *State) Summarize(_ *State, params *Parameters) Summary {
	return scaffold.SummarizeFields(s, params, stateFields)
}

func (s *State) Delta(_ *State, params *Parameters, old *Summary) (Delta, bool) {
	return scaffold.DeltaFields(s, params, old, stateFields)
}

// ApplyDelta merges a delta all-or-nothing: children merge into a scratch
// copy, the copy is canonicalized and re-verified, and only then does it
// replace the current value. A verification failure of the merged result
// wraps ErrInternalInvariant; it means the merge itself is broken and the
// replica must not persist or synchronize further.
func (s *State) ApplyDelta(_ *State, params *Parameters, delta Delta) error {
	updated := s.Clone()
	if err := scaffold.ApplyFields(updated, params, &delta, stateFields); err != nil {
		return err
	}
	updated.canonicalize(params)
	if err := updated.Verify(updated, params); err != nil {
		return fmt.Errorf("%w: %s", scaffold.ErrInternalInvariant, err)
	}
	*s = *updated
	return nil
}

func (s *State) Bytes() ([]byte, error) {
	return Codec.Marshal(CodecVersion, s)
}

func ParseState(b []byte) (*State, error) {
	state := &State{}
	if _, err := Codec.Unmarshal(b, state); err != nil {
		return nil, fmt.Errorf("%w: %s", scaffold.ErrMalformed, err)
	}
	return state, nil
}

func (s *Summary) Bytes() ([]byte, error) {
	return Codec.Marshal(CodecVersion, s)
}

func ParseSummary(b []byte) (*Summary, error) {
	summary := &Summary{}
	if _, err := Codec.Unmarshal(b, summary); err != nil {
		return nil, fmt.Errorf("%w: %s", scaffold.ErrMalformed, err)
	}
	return summary, nil
}

func (d *Delta) Bytes() ([]byte, error) {
	return Codec.Marshal(CodecVersion, d)
}

func ParseDelta(b []byte) (*Delta, error) {
	delta := &Delta{}
	if _, err := Codec.Unmarshal(b, delta); err != nil {
		return nil, fmt.Errorf("%w: %s", scaffold.ErrMalformed, err)
	}
	return delta, nil
}
