// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"fmt"

	"github.com/luxfi/crypto/secp256k1"

	"github.com/luxfi/roomstate/scaffold"
)

var _ scaffold.State[State, Parameters, RevisionSummary, []SignedConfiguration] = (*SignedConfiguration)(nil)

// Configuration holds the room-wide limits and display settings. It is
// replicated as a single owner-signed value with last-writer-wins merge
// keyed by (Version, record ID), so replicas converge even if the owner
// signs conflicting revisions.
type Configuration struct {
	Version           uint64 `serialize:"true" json:"version"`
	Name              string `serialize:"true" json:"name"`
	MaxMembers        uint32 `serialize:"true" json:"maxMembers"`
	MaxUserBans       uint32 `serialize:"true" json:"maxUserBans"`
	MaxRecentMessages uint32 `serialize:"true" json:"maxRecentMessages"`
	MaxMessageSize    uint32 `serialize:"true" json:"maxMessageSize"`
	MaxNicknameSize   uint32 `serialize:"true" json:"maxNicknameSize"`
}

// DefaultConfiguration is the value every room starts from. It is the only
// configuration allowed to carry version 0 and an empty signature.
func DefaultConfiguration() SignedConfiguration {
	return SignedConfiguration{
		Configuration: Configuration{
			Version:           0,
			MaxMembers:        200,
			MaxUserBans:       50,
			MaxRecentMessages: 100,
			MaxMessageSize:    4096,
			MaxNicknameSize:   50,
		},
	}
}

type SignedConfiguration struct {
	Configuration Configuration `serialize:"true" json:"configuration"`
	Signature     Signature     `serialize:"true" json:"signature"`
}

// NewSignedConfiguration signs a configuration revision with the room
// owner's key.
func NewSignedConfiguration(cfg Configuration, ownerKey *secp256k1.PrivateKey) (SignedConfiguration, error) {
	sig, err := signRecord(ownerKey, &cfg)
	if err != nil {
		return SignedConfiguration{}, err
	}
	return SignedConfiguration{Configuration: cfg, Signature: sig}, nil
}

func (c *SignedConfiguration) verifyRecord(params *Parameters) error {
	if c.Configuration.Version == 0 {
		if *c != DefaultConfiguration() {
			return fmt.Errorf("%w: version 0 configuration is reserved for the default", scaffold.ErrMalformed)
		}
		return nil
	}
	switch {
	case c.Configuration.MaxMembers == 0,
		c.Configuration.MaxRecentMessages == 0,
		c.Configuration.MaxMessageSize == 0,
		c.Configuration.MaxNicknameSize == 0:
		return fmt.Errorf("%w: configuration limits must be positive", scaffold.ErrMalformed)
	}
	signer, err := recoverSigner(&c.Configuration, c.Signature)
	if err != nil {
		return err
	}
	if signer != params.Owner {
		return fmt.Errorf("%w: configuration not signed by room owner", scaffold.ErrUnauthorized)
	}
	return nil
}

// supersedes reports whether c wins over other under the (Version, record
// ID) total order. Equal records supersede nothing, which keeps merge
// idempotent.
func (c *SignedConfiguration) supersedes(other *SignedConfiguration) bool {
	if c.Configuration.Version != other.Configuration.Version {
		return c.Configuration.Version > other.Configuration.Version
	}
	return signatureID(c.Signature).Compare(signatureID(other.Signature)) < 0
}

func (c *SignedConfiguration) Verify(_ *State, params *Parameters) error {
	return c.verifyRecord(params)
}

func (c *SignedConfiguration) Summarize(*State, *Parameters) RevisionSummary {
	return RevisionSummary{
		Version: c.Configuration.Version,
		Record:  signatureID(c.Signature),
	}
}

func (c *SignedConfiguration) Delta(_ *State, _ *Parameters, old *RevisionSummary) ([]SignedConfiguration, bool) {
	switch {
	case c.Configuration.Version > old.Version:
	case c.Configuration.Version == old.Version &&
		signatureID(c.Signature).Compare(old.Record) < 0:
		// Same version, different records: the peer holds the losing
		// side of the tie and needs ours to converge.
	default:
		return nil, false
	}
	return []SignedConfiguration{*c}, true
}

func (c *SignedConfiguration) ApplyDelta(_ *State, params *Parameters, delta []SignedConfiguration) error {
	updated := *c
	for i := range delta {
		candidate := delta[i]
		if err := candidate.verifyRecord(params); err != nil {
			return err
		}
		if candidate.supersedes(&updated) {
			updated = candidate
		}
	}
	*c = updated
	return nil
}
