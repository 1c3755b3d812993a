// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func TestUpgradeAnnouncement(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	require.False(r.state.Upgrade.Announced())

	target := ids.GenerateTestID()
	up, err := NewSignedUpgrade(&r.params, 1, target, r.ownerKey)
	require.NoError(err)
	r.apply(t, Delta{Upgrade: []SignedUpgrade{up}})

	require.True(r.state.Upgrade.Announced())
	require.Equal(target, r.state.Upgrade.Upgrade.Target)
}

func TestUpgradeRejectsNonOwner(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)
	alice := newKey(t)
	r.invite(t, r.ownerKey, alice.Address())

	// A member forges an announcement bound to the right room.
	up := Upgrade{RoomOwner: r.params.Owner, Version: 1, Target: ids.GenerateTestID()}
	sig, err := signRecord(alice, &up)
	require.NoError(err)
	forged := SignedUpgrade{Upgrade: up, Signature: sig}

	err = r.state.ApplyDelta(r.state, &r.params, Delta{Upgrade: []SignedUpgrade{forged}})
	require.ErrorContains(err, "upgrade:")
	require.False(r.state.Upgrade.Announced())
}

func TestUpgradeRejectsEmptyTarget(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)

	up, err := NewSignedUpgrade(&r.params, 1, ids.Empty, r.ownerKey)
	require.NoError(err)

	err = r.state.ApplyDelta(r.state, &r.params, Delta{Upgrade: []SignedUpgrade{up}})
	require.Error(err)
}

func TestUpgradeConcurrentAnnouncementsConverge(t *testing.T) {
	require := require.New(t)
	r1 := newTestRoom(t)
	r2 := &testRoom{params: r1.params, state: NewState(), ownerKey: r1.ownerKey}

	a, err := NewSignedUpgrade(&r1.params, 1, ids.GenerateTestID(), r1.ownerKey)
	require.NoError(err)
	b, err := NewSignedUpgrade(&r1.params, 1, ids.GenerateTestID(), r1.ownerKey)
	require.NoError(err)
	winner := a
	if signatureID(b.Signature).Compare(signatureID(a.Signature)) < 0 {
		winner = b
	}

	r1.apply(t, Delta{Upgrade: []SignedUpgrade{a}})
	r2.apply(t, Delta{Upgrade: []SignedUpgrade{b}})

	syncRooms(t, r1, r2)
	require.Equal(winner.Upgrade, r1.state.Upgrade.Upgrade)
	require.Equal(winner.Upgrade, r2.state.Upgrade.Upgrade)
}

func TestUpgradeLastWriterWins(t *testing.T) {
	require := require.New(t)
	r := newTestRoom(t)

	first, err := NewSignedUpgrade(&r.params, 1, ids.GenerateTestID(), r.ownerKey)
	require.NoError(err)
	second, err := NewSignedUpgrade(&r.params, 2, ids.GenerateTestID(), r.ownerKey)
	require.NoError(err)

	r.apply(t, Delta{Upgrade: []SignedUpgrade{second}})
	r.apply(t, Delta{Upgrade: []SignedUpgrade{first}})

	require.Equal(second.Upgrade, r.state.Upgrade.Upgrade)
}
