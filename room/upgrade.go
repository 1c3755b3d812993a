// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"fmt"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"

	"github.com/luxfi/roomstate/scaffold"
)

var _ scaffold.State[State, Parameters, RevisionSummary, []SignedUpgrade] = (*SignedUpgrade)(nil)

// Upgrade points members at a successor room schema or contract. Version 0
// with an empty signature means no upgrade has been announced; later
// announcements merge last-writer-wins like the configuration.
type Upgrade struct {
	RoomOwner ids.ShortID `serialize:"true" json:"roomOwner"`
	Version   uint64      `serialize:"true" json:"version"`
	Target    ids.ID      `serialize:"true" json:"target"`
}

type SignedUpgrade struct {
	Upgrade   Upgrade   `serialize:"true" json:"upgrade"`
	Signature Signature `serialize:"true" json:"signature"`
}

// NewSignedUpgrade announces an upgrade signed by the room owner.
func NewSignedUpgrade(params *Parameters, version uint64, target ids.ID, ownerKey *secp256k1.PrivateKey) (SignedUpgrade, error) {
	up := Upgrade{RoomOwner: params.Owner, Version: version, Target: target}
	sig, err := signRecord(ownerKey, &up)
	if err != nil {
		return SignedUpgrade{}, err
	}
	return SignedUpgrade{Upgrade: up, Signature: sig}, nil
}

// Announced reports whether an upgrade has been published.
func (u *SignedUpgrade) Announced() bool {
	return u.Upgrade.Version != 0
}

func (u *SignedUpgrade) verifyRecord(params *Parameters) error {
	if u.Upgrade.Version == 0 {
		if *u != (SignedUpgrade{}) {
			return fmt.Errorf("%w: version 0 upgrade must be empty", scaffold.ErrMalformed)
		}
		return nil
	}
	if u.Upgrade.RoomOwner != params.Owner {
		return fmt.Errorf("%w: upgrade bound to a different room", scaffold.ErrMalformed)
	}
	if u.Upgrade.Target == ids.Empty {
		return fmt.Errorf("%w: upgrade without a target", scaffold.ErrMalformed)
	}
	signer, err := recoverSigner(&u.Upgrade, u.Signature)
	if err != nil {
		return err
	}
	if signer != params.Owner {
		return fmt.Errorf("%w: upgrade not signed by room owner", scaffold.ErrUnauthorized)
	}
	return nil
}

func (u *SignedUpgrade) supersedes(other *SignedUpgrade) bool {
	if u.Upgrade.Version != other.Upgrade.Version {
		return u.Upgrade.Version > other.Upgrade.Version
	}
	return signatureID(u.Signature).Compare(signatureID(other.Signature)) < 0
}

func (u *SignedUpgrade) Verify(_ *State, params *Parameters) error {
	return u.verifyRecord(params)
}

func (u *SignedUpgrade) Summarize(*State, *Parameters) RevisionSummary {
	return RevisionSummary{
		Version: u.Upgrade.Version,
		Record:  signatureID(u.Signature),
	}
}

func (u *SignedUpgrade) Delta(_ *State, _ *Parameters, old *RevisionSummary) ([]SignedUpgrade, bool) {
	switch {
	case u.Upgrade.Version > old.Version:
	case u.Upgrade.Version == old.Version &&
		signatureID(u.Signature).Compare(old.Record) < 0:
	default:
		return nil, false
	}
	return []SignedUpgrade{*u}, true
}

func (u *SignedUpgrade) ApplyDelta(_ *State, params *Parameters, delta []SignedUpgrade) error {
	updated := *u
	for i := range delta {
		candidate := delta[i]
		if err := candidate.verifyRecord(params); err != nil {
			return err
		}
		if candidate.supersedes(&updated) {
			updated = candidate
		}
	}
	*u = updated
	return nil
}
