// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"errors"

	"github.com/luxfi/ids"

	"github.com/luxfi/roomstate/utils/hashing"
)

var errEmptyOwner = errors.New("empty room owner")

// Parameters is the read-only context inherited by every node in a room's
// state tree. It is fixed when the room is created and supplied top-down on
// every verify and merge call; nodes never hold their own copy.
type Parameters struct {
	// Owner is the address of the room owner's public key. Every
	// authorization chain in the room terminates here.
	Owner ids.ShortID `serialize:"true" json:"owner"`
}

func (p *Parameters) Verify() error {
	if p.Owner == ids.ShortEmpty {
		return errEmptyOwner
	}
	return nil
}

// RoomID derives the room's identity from its parameters, so two rooms with
// the same owner history still synchronize independently of transport-level
// naming.
func (p *Parameters) RoomID() (ids.ID, error) {
	b, err := Codec.Marshal(CodecVersion, p)
	if err != nil {
		return ids.Empty, err
	}
	return hashing.ComputeHash256Array(b), nil
}
