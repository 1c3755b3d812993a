// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"fmt"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
	"github.com/luxfi/utils"

	"github.com/luxfi/roomstate/scaffold"
)

var _ scaffold.State[State, Parameters, []ids.ID, []SignedMember] = (*Members)(nil)

// Member records one invitation: the invited user's address and who issued
// the invite. The record is signed by the inviter, so the invite chains
// rooted at the owner are what authorize membership; there is no separate
// invitation queue.
type Member struct {
	// RoomOwner binds the record to a single room so it cannot be replayed
	// into another room with the same participants.
	RoomOwner ids.ShortID `serialize:"true" json:"roomOwner"`
	MemberID  ids.ShortID `serialize:"true" json:"memberId"`
	InvitedBy ids.ShortID `serialize:"true" json:"invitedBy"`
}

type SignedMember struct {
	Member    Member    `serialize:"true" json:"member"`
	Signature Signature `serialize:"true" json:"signature"`
}

// NewSignedMember invites memberID into the room, signing with the
// inviter's key.
func NewSignedMember(params *Parameters, memberID ids.ShortID, inviterKey *secp256k1.PrivateKey) (SignedMember, error) {
	member := Member{
		RoomOwner: params.Owner,
		MemberID:  memberID,
		InvitedBy: inviterKey.Address(),
	}
	sig, err := signRecord(inviterKey, &member)
	if err != nil {
		return SignedMember{}, err
	}
	return SignedMember{Member: member, Signature: sig}, nil
}

func (m SignedMember) ID() ids.ID {
	return signatureID(m.Signature)
}

func (m SignedMember) Compare(o SignedMember) int {
	if cmp := m.Member.MemberID.Compare(o.Member.MemberID); cmp != 0 {
		return cmp
	}
	return m.ID().Compare(o.ID())
}

func (m SignedMember) verifyRecord(params *Parameters) error {
	if m.Member.RoomOwner != params.Owner {
		return fmt.Errorf("%w: member record bound to a different room", scaffold.ErrMalformed)
	}
	if m.Member.MemberID == params.Owner {
		return fmt.Errorf("%w: room owner cannot hold a member record", scaffold.ErrPolicyViolation)
	}
	signer, err := recoverSigner(&m.Member, m.Signature)
	if err != nil {
		return err
	}
	if signer != m.Member.InvitedBy {
		return fmt.Errorf("%w: member record not signed by its inviter", scaffold.ErrUnauthorized)
	}
	return nil
}

// Members is the grow-only set of invitation records, kept sorted by
// (member ID, record ID). A member invited concurrently by several users
// holds several records; merge is a plain union keyed by record ID, never
// replacement, so an authorization edge a merged ban relied on can never
// disappear. Revocation is expressed by ban tombstones, and a member whose
// every path to the owner passes through a banned user loses effective
// membership without any record disappearing.
type Members struct {
	Records []SignedMember `serialize:"true" json:"records"`
}

func (m *Members) recordsByMember() map[ids.ShortID][]SignedMember {
	out := make(map[ids.ShortID][]SignedMember, len(m.Records))
	for _, r := range m.Records {
		out[r.Member.MemberID] = append(out[r.Member.MemberID], r)
	}
	return out
}

func (m *Members) has(id ids.ShortID) bool {
	for _, r := range m.Records {
		if r.Member.MemberID == id {
			return true
		}
	}
	return false
}

// visitInviters breadth-first walks the invite graph upward from id,
// following every record's inviter edge. visit is called once per distinct
// non-owner inviter encountered and reports whether the walk may continue
// through that inviter. The return value is whether the owner was reached
// along some path of permitted inviters; cycles terminate the walk because
// each inviter is expanded at most once.
func (m *Members) visitInviters(id ids.ShortID, params *Parameters, visit func(ids.ShortID) bool) bool {
	byMember := m.recordsByMember()
	seen := make(set.Set[ids.ShortID], len(m.Records))
	frontier := []ids.ShortID{id}
	reachedOwner := false
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for _, r := range byMember[cur] {
			inviter := r.Member.InvitedBy
			if inviter == params.Owner {
				reachedOwner = true
				continue
			}
			if seen.Contains(inviter) {
				continue
			}
			seen.Add(inviter)
			if visit(inviter) {
				frontier = append(frontier, inviter)
			}
		}
	}
	return reachedOwner
}

func (m *Members) reachesOwner(id ids.ShortID, params *Parameters) bool {
	return m.visitInviters(id, params, func(ids.ShortID) bool { return true })
}

// isAncestor reports whether ancestor appears anywhere in member's invite
// graph. Ancestry is what scopes ban authority: a member may only ban
// users they transitively invited. Records are never removed, so once an
// ancestry holds it holds on every replica forever.
func (m *Members) isAncestor(ancestor, member ids.ShortID, params *Parameters) bool {
	found := false
	m.visitInviters(member, params, func(link ids.ShortID) bool {
		if link == ancestor {
			found = true
		}
		return true
	})
	return found
}

// isEffective reports whether id currently holds membership: id is not
// banned and some invitation path reaches the owner without passing
// through a banned user. The owner is always effective.
func (m *Members) isEffective(id ids.ShortID, parent *State, params *Parameters) bool {
	if id == params.Owner {
		return true
	}
	if parent.Bans.isBanned(id) {
		return false
	}
	return m.visitInviters(id, params, func(link ids.ShortID) bool {
		return !parent.Bans.isBanned(link)
	})
}

func (m *Members) Verify(parent *State, params *Parameters) error {
	if !utils.IsSortedAndUnique(m.Records) {
		return fmt.Errorf("%w: member records not sorted and unique", scaffold.ErrMalformed)
	}
	maxMembers := parent.Configuration.Configuration.MaxMembers
	if uint32(len(m.Records)) > maxMembers {
		return fmt.Errorf("%w: %d member records exceed the maximum of %d", scaffold.ErrPolicyViolation, len(m.Records), maxMembers)
	}
	for _, r := range m.Records {
		if err := r.verifyRecord(params); err != nil {
			return err
		}
		if inviter := r.Member.InvitedBy; inviter != params.Owner && !m.has(inviter) {
			return fmt.Errorf("%w: inviter %s has no member record", scaffold.ErrUnauthorized, inviter)
		}
		if !m.reachesOwner(r.Member.MemberID, params) {
			return fmt.Errorf("%w: invite chain for %s does not terminate at the owner", scaffold.ErrUnauthorized, r.Member.MemberID)
		}
	}
	return nil
}

func (m *Members) Summarize(*State, *Parameters) []ids.ID {
	out := make([]ids.ID, len(m.Records))
	for i, r := range m.Records {
		out[i] = r.ID()
	}
	utils.Sort(out)
	return out
}

func (m *Members) Delta(_ *State, _ *Parameters, old *[]ids.ID) ([]SignedMember, bool) {
	known := set.Of(*old...)
	var delta []SignedMember
	for _, r := range m.Records {
		if !known.Contains(r.ID()) {
			delta = append(delta, r)
		}
	}
	return delta, len(delta) > 0
}

func (m *Members) ApplyDelta(parent *State, params *Parameters, delta []SignedMember) error {
	current := make(set.Set[ids.ID], len(m.Records))
	for _, r := range m.Records {
		current.Add(r.ID())
	}

	merged := make([]SignedMember, len(m.Records), len(m.Records)+len(delta))
	copy(merged, m.Records)
	for _, candidate := range delta {
		if current.Contains(candidate.ID()) {
			continue
		}
		current.Add(candidate.ID())
		merged = append(merged, candidate)
	}
	utils.Sort(merged)

	old := m.Records
	m.Records = merged
	if err := m.Verify(parent, params); err != nil {
		m.Records = old
		return fmt.Errorf("invalid member delta: %w", err)
	}
	return nil
}
