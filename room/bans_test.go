// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
)

// banFixture is a room with an invite chain
// owner -> alice -> bob -> carol, plus dave invited directly by owner.
type banFixture struct {
	*testRoom
	alice, bob, carol, dave *secp256k1.PrivateKey
}

func newBanFixture(t *testing.T) *banFixture {
	t.Helper()
	f := &banFixture{
		testRoom: newTestRoom(t),
		alice:    newKey(t),
		bob:      newKey(t),
		carol:    newKey(t),
		dave:     newKey(t),
	}
	f.invite(t, f.ownerKey, f.alice.Address())
	f.invite(t, f.alice, f.bob.Address())
	f.invite(t, f.bob, f.carol.Address())
	f.invite(t, f.ownerKey, f.dave.Address())
	return f
}

func (f *banFixture) ban(t *testing.T, bannerKey *secp256k1.PrivateKey, banned ids.ShortID, at int64) SignedBan {
	t.Helper()
	record, err := NewSignedBan(UserBan{
		RoomOwner: f.params.Owner,
		BannedAt:  at,
		Banned:    banned,
	}, bannerKey)
	require.NoError(t, err)
	return record
}

func TestBanByOwner(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)

	// The owner may ban anyone with a member record.
	f.apply(t, Delta{Bans: []SignedBan{f.ban(t, f.ownerKey, f.dave.Address(), 10)}})
	require.True(f.state.Bans.isBanned(f.dave.Address()))
	require.False(f.state.Members.isEffective(f.dave.Address(), f.state, &f.params))
}

func TestBanByInviter(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)

	// Alice invited bob, so alice may ban bob.
	f.apply(t, Delta{Bans: []SignedBan{f.ban(t, f.alice, f.bob.Address(), 10)}})
	require.True(f.state.Bans.isBanned(f.bob.Address()))

	// Banning bob silences his whole subtree: carol's chain now passes
	// through a banned inviter.
	require.False(f.state.Members.isEffective(f.carol.Address(), f.state, &f.params))
	require.True(f.state.Members.isEffective(f.alice.Address(), f.state, &f.params))
}

func TestBanByTransitiveInviter(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)

	// Alice is a transitive inviter of carol (alice -> bob -> carol).
	f.apply(t, Delta{Bans: []SignedBan{f.ban(t, f.alice, f.carol.Address(), 10)}})
	require.True(f.state.Bans.isBanned(f.carol.Address()))
	require.True(f.state.Members.isEffective(f.bob.Address(), f.state, &f.params))
}

func TestBanOutsideInviteSubtree(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)
	before := f.bytes(t)

	// Dave did not invite bob, directly or transitively.
	err := f.state.ApplyDelta(f.state, &f.params, Delta{
		Bans: []SignedBan{f.ban(t, f.dave, f.bob.Address(), 10)},
	})
	require.ErrorContains(err, "bans:")
	require.Equal(before, f.bytes(t))

	// An invitee can never ban an ancestor.
	err = f.state.ApplyDelta(f.state, &f.params, Delta{
		Bans: []SignedBan{f.ban(t, f.carol, f.alice.Address(), 10)},
	})
	require.Error(err)
	require.Equal(before, f.bytes(t))
}

func TestBanByNonMember(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)

	stranger := newKey(t)
	err := f.state.ApplyDelta(f.state, &f.params, Delta{
		Bans: []SignedBan{f.ban(t, stranger, f.bob.Address(), 10)},
	})
	require.Error(err)
	require.False(f.state.Bans.isBanned(f.bob.Address()))
}

func TestBanOfNonMember(t *testing.T) {
	f := newBanFixture(t)

	stranger := newKey(t)
	err := f.state.ApplyDelta(f.state, &f.params, Delta{
		Bans: []SignedBan{f.ban(t, f.ownerKey, stranger.Address(), 10)},
	})
	require.Error(t, err)
}

func TestBanWrongRoom(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)

	record, err := NewSignedBan(UserBan{
		RoomOwner: newKey(t).Address(),
		BannedAt:  10,
		Banned:    f.bob.Address(),
	}, f.ownerKey)
	require.NoError(err)

	err = f.state.ApplyDelta(f.state, &f.params, Delta{Bans: []SignedBan{record}})
	require.Error(err)
}

func TestBanSummaryAndDelta(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)

	banBob := f.ban(t, f.alice, f.bob.Address(), 10)
	f.apply(t, Delta{Bans: []SignedBan{banBob}})

	summary := f.state.Bans.Summarize(f.state, &f.params)
	require.Equal([]ids.ID{banBob.ID()}, summary)

	// A peer that already holds the ban gets nothing.
	delta, changed := f.state.Bans.Delta(f.state, &f.params, &summary)
	require.False(changed)
	require.Empty(delta)

	// A peer with an empty summary gets every record.
	empty := []ids.ID{}
	delta, changed = f.state.Bans.Delta(f.state, &f.params, &empty)
	require.True(changed)
	require.Equal([]SignedBan{banBob}, delta)
}

func TestBanApplyIdempotent(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)

	banBob := f.ban(t, f.alice, f.bob.Address(), 10)
	f.apply(t, Delta{Bans: []SignedBan{banBob}})
	once := f.bytes(t)

	f.apply(t, Delta{Bans: []SignedBan{banBob}})
	require.Equal(once, f.bytes(t))
}

func TestBanOrderingDeterministic(t *testing.T) {
	require := require.New(t)
	f := newBanFixture(t)

	banCarol := f.ban(t, f.bob, f.carol.Address(), 30)
	banDave := f.ban(t, f.ownerKey, f.dave.Address(), 20)

	// Apply in the opposite of canonical order; records must come out
	// sorted by (BannedAt, ID).
	f.apply(t, Delta{Bans: []SignedBan{banCarol}})
	f.apply(t, Delta{Bans: []SignedBan{banDave}})

	records := f.state.Bans.Records
	require.Len(records, 2)
	require.Equal(banDave, records[0])
	require.Equal(banCarol, records[1])
}

func TestBanCapRejectsOversizedDelta(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)

	cfg := DefaultConfiguration().Configuration
	cfg.Version = 1
	cfg.Name = "tiny"
	cfg.MaxUserBans = 1
	signedCfg, err := NewSignedConfiguration(cfg, r.ownerKey)
	require.NoError(err)
	r.apply(t, Delta{Configuration: []SignedConfiguration{signedCfg}})

	a, b := newKey(t), newKey(t)
	r.invite(t, r.ownerKey, a.Address())
	r.invite(t, r.ownerKey, b.Address())

	mkBan := func(banned ids.ShortID, at int64) SignedBan {
		record, err := NewSignedBan(UserBan{
			RoomOwner: r.params.Owner,
			BannedAt:  at,
			Banned:    banned,
		}, r.ownerKey)
		require.NoError(err)
		return record
	}

	r.apply(t, Delta{Bans: []SignedBan{mkBan(a.Address(), 10)}})
	err = r.state.ApplyDelta(r.state, &r.params, Delta{Bans: []SignedBan{mkBan(b.Address(), 20)}})
	require.Error(err)
	require.Len(r.state.Bans.Records, 1)
}
