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

var _ scaffold.State[State, Parameters, []ids.ID, []SignedBan] = (*Bans)(nil)

// UserBan tombstones a member. Bans are never removed from room state, so
// merge stays monotone: once a user is banned, no sequence of merges
// reinstates them, their messages, or their info records.
type UserBan struct {
	RoomOwner ids.ShortID `serialize:"true" json:"roomOwner"`
	// BannedAt orders bans when the cap binds; forged timestamps only
	// affect which bans survive the cap, never whether a ban verifies.
	BannedAt int64       `serialize:"true" json:"bannedAt"`
	Banned   ids.ShortID `serialize:"true" json:"banned"`
}

type SignedBan struct {
	Ban       UserBan     `serialize:"true" json:"ban"`
	BannedBy  ids.ShortID `serialize:"true" json:"bannedBy"`
	Signature Signature   `serialize:"true" json:"signature"`
}

// NewSignedBan bans a user, signing with the banning member's key.
func NewSignedBan(ban UserBan, bannerKey *secp256k1.PrivateKey) (SignedBan, error) {
	sig, err := signRecord(bannerKey, &ban)
	if err != nil {
		return SignedBan{}, err
	}
	return SignedBan{Ban: ban, BannedBy: bannerKey.Address(), Signature: sig}, nil
}

func (b SignedBan) ID() ids.ID {
	return signatureID(b.Signature)
}

func (b SignedBan) Compare(o SignedBan) int {
	if b.Ban.BannedAt != o.Ban.BannedAt {
		if b.Ban.BannedAt < o.Ban.BannedAt {
			return -1
		}
		return 1
	}
	return b.ID().Compare(o.ID())
}

// verifyRecord checks a single ban's authorization: the owner may ban
// anyone with a member record; a member may only ban users they
// transitively invited. Ancestry is evaluated against member records, which
// are permanent, so a ban once valid stays valid even after the banner
// loses effective membership.
func (b SignedBan) verifyRecord(parent *State, params *Parameters) error {
	if b.Ban.RoomOwner != params.Owner {
		return fmt.Errorf("%w: ban bound to a different room", scaffold.ErrMalformed)
	}
	signer, err := recoverSigner(&b.Ban, b.Signature)
	if err != nil {
		return err
	}
	if signer != b.BannedBy {
		return fmt.Errorf("%w: ban not signed by its banning member", scaffold.ErrUnauthorized)
	}
	if !parent.Members.has(b.Ban.Banned) {
		return fmt.Errorf("%w: banned user %s has no member record", scaffold.ErrUnauthorized, b.Ban.Banned)
	}
	if b.BannedBy == params.Owner {
		return nil
	}
	if !parent.Members.has(b.BannedBy) {
		return fmt.Errorf("%w: banning member %s has no member record", scaffold.ErrUnauthorized, b.BannedBy)
	}
	if !parent.Members.isAncestor(b.BannedBy, b.Ban.Banned, params) {
		return fmt.Errorf("%w: banning member %s did not invite %s", scaffold.ErrUnauthorized, b.BannedBy, b.Ban.Banned)
	}
	return nil
}

// Bans is the grow-only tombstone set, kept sorted by (BannedAt, record ID).
type Bans struct {
	Records []SignedBan `serialize:"true" json:"records"`
}

func (b *Bans) isBanned(id ids.ShortID) bool {
	for _, r := range b.Records {
		if r.Ban.Banned == id {
			return true
		}
	}
	return false
}

func (b *Bans) Verify(parent *State, params *Parameters) error {
	if !utils.IsSortedAndUnique(b.Records) {
		return fmt.Errorf("%w: bans not sorted and unique", scaffold.ErrMalformed)
	}
	maxBans := parent.Configuration.Configuration.MaxUserBans
	if uint32(len(b.Records)) > maxBans {
		return fmt.Errorf("%w: %d bans exceed the maximum of %d", scaffold.ErrPolicyViolation, len(b.Records), maxBans)
	}
	for _, r := range b.Records {
		if err := r.verifyRecord(parent, params); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bans) Summarize(*State, *Parameters) []ids.ID {
	out := make([]ids.ID, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.ID()
	}
	utils.Sort(out)
	return out
}

func (b *Bans) Delta(_ *State, _ *Parameters, old *[]ids.ID) ([]SignedBan, bool) {
	known := set.Of(*old...)
	var delta []SignedBan
	for _, r := range b.Records {
		if !known.Contains(r.ID()) {
			delta = append(delta, r)
		}
	}
	return delta, len(delta) > 0
}

func (b *Bans) ApplyDelta(parent *State, params *Parameters, delta []SignedBan) error {
	current := make(set.Set[ids.ID], len(b.Records))
	for _, r := range b.Records {
		current.Add(r.ID())
	}

	merged := make([]SignedBan, len(b.Records), len(b.Records)+len(delta))
	copy(merged, b.Records)
	for _, candidate := range delta {
		if current.Contains(candidate.ID()) {
			continue
		}
		current.Add(candidate.ID())
		merged = append(merged, candidate)
	}
	utils.Sort(merged)

	old := b.Records
	b.Records = merged
	if err := b.Verify(parent, params); err != nil {
		b.Records = old
		return fmt.Errorf("invalid ban delta: %w", err)
	}
	return nil
}
