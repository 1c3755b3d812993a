// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/crypto/secp256k1"
)

func (r *testRoom) profile(t *testing.T, memberKey *secp256k1.PrivateKey, version uint64, nickname string) SignedMemberInfo {
	t.Helper()
	info, err := NewSignedMemberInfo(&r.params, version, nickname, memberKey)
	require.NoError(t, err)
	return info
}

func TestMemberInfoPublish(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	alice := newKey(t)
	r.invite(t, r.ownerKey, alice.Address())

	r.apply(t, Delta{MemberInfo: []SignedMemberInfo{r.profile(t, alice, 1, "Alice")}})
	nick, ok := r.state.MemberInfo.Nickname(alice.Address())
	require.True(ok)
	require.Equal("Alice", nick)
}

func TestMemberInfoNewerVersionWins(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	alice := newKey(t)
	r.invite(t, r.ownerKey, alice.Address())

	v2 := r.profile(t, alice, 2, "Alice v2")
	v1 := r.profile(t, alice, 1, "Alice v1")

	// Stale revision arrives after the newer one and loses.
	r.apply(t, Delta{MemberInfo: []SignedMemberInfo{v2}})
	r.apply(t, Delta{MemberInfo: []SignedMemberInfo{v1}})

	nick, _ := r.state.MemberInfo.Nickname(alice.Address())
	require.Equal("Alice v2", nick)
	require.Len(r.state.MemberInfo.Records, 1)
}

func TestMemberInfoEqualVersionTieBreak(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	alice := newKey(t)
	r.invite(t, r.ownerKey, alice.Address())

	a := r.profile(t, alice, 1, "first draft")
	b := r.profile(t, alice, 1, "second draft")
	winner := a
	if b.supersedes(a) {
		winner = b
	}

	r.apply(t, Delta{MemberInfo: []SignedMemberInfo{a}})
	r.apply(t, Delta{MemberInfo: []SignedMemberInfo{b}})

	nick, _ := r.state.MemberInfo.Nickname(alice.Address())
	require.Equal(winner.MemberInfo.Nickname, nick)
}

func TestMemberInfoRejectsNonMember(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	stranger := newKey(t)

	err := r.state.ApplyDelta(r.state, &r.params, Delta{
		MemberInfo: []SignedMemberInfo{r.profile(t, stranger, 1, "ghost")},
	})
	require.ErrorContains(err, "memberInfo:")
	require.Empty(r.state.MemberInfo.Records)
}

func TestMemberInfoRejectsImpersonation(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	alice, mallory := newKey(t), newKey(t)
	r.invite(t, r.ownerKey, alice.Address())
	r.invite(t, r.ownerKey, mallory.Address())

	// Mallory signs a profile that claims to describe alice.
	info := MemberInfo{
		RoomOwner: r.params.Owner,
		MemberID:  alice.Address(),
		Version:   1,
		Nickname:  "not alice",
	}
	sig, err := signRecord(mallory, &info)
	require.NoError(err)
	forged := SignedMemberInfo{MemberInfo: info, Signature: sig}

	err = r.state.ApplyDelta(r.state, &r.params, Delta{MemberInfo: []SignedMemberInfo{forged}})
	require.Error(err)
}

func TestMemberInfoNicknameCap(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	alice := newKey(t)
	r.invite(t, r.ownerKey, alice.Address())

	maxSize := r.state.Configuration.Configuration.MaxNicknameSize
	long := r.profile(t, alice, 1, strings.Repeat("n", int(maxSize)+1))

	err := r.state.ApplyDelta(r.state, &r.params, Delta{MemberInfo: []SignedMemberInfo{long}})
	require.Error(err)
}

func TestMemberInfoDroppedOnBan(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	alice := newKey(t)
	r.invite(t, r.ownerKey, alice.Address())
	r.apply(t, Delta{MemberInfo: []SignedMemberInfo{r.profile(t, alice, 1, "Alice")}})

	ban, err := NewSignedBan(UserBan{
		RoomOwner: r.params.Owner,
		BannedAt:  50,
		Banned:    alice.Address(),
	}, r.ownerKey)
	require.NoError(err)
	r.apply(t, Delta{Bans: []SignedBan{ban}})

	_, ok := r.state.MemberInfo.Nickname(alice.Address())
	require.False(ok)
}

func TestMemberInfoDeltaPerMember(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	alice, bob := newKey(t), newKey(t)
	r.invite(t, r.ownerKey, alice.Address())
	r.invite(t, r.ownerKey, bob.Address())

	r.apply(t, Delta{MemberInfo: []SignedMemberInfo{r.profile(t, alice, 1, "Alice")}})
	peer := r.state.MemberInfo.Summarize(r.state, &r.params)

	r.apply(t, Delta{MemberInfo: []SignedMemberInfo{
		r.profile(t, alice, 2, "Alice again"),
		r.profile(t, bob, 1, "Bob"),
	}})

	// The peer needs bob's record and alice's newer revision.
	delta, changed := r.state.MemberInfo.Delta(r.state, &r.params, &peer)
	require.True(changed)
	require.Len(delta, 2)

	current := r.state.MemberInfo.Summarize(r.state, &r.params)
	_, changed = r.state.MemberInfo.Delta(r.state, &r.params, &current)
	require.False(changed)
}
