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

var _ scaffold.State[State, Parameters, []ids.ID, []SignedMessage] = (*Messages)(nil)

// Message is one chat message. Identity is content-addressed through the
// signature, and the log's total order is (Time, Author, ID), so ties from
// skewed clocks resolve identically on every replica.
type Message struct {
	RoomOwner ids.ShortID `serialize:"true" json:"roomOwner"`
	Author    ids.ShortID `serialize:"true" json:"author"`
	Time      int64       `serialize:"true" json:"time"`
	Content   string      `serialize:"true" json:"content"`
}

type SignedMessage struct {
	Message   Message   `serialize:"true" json:"message"`
	Signature Signature `serialize:"true" json:"signature"`
}

// NewSignedMessage signs a message with the author's key.
func NewSignedMessage(params *Parameters, content string, time int64, authorKey *secp256k1.PrivateKey) (SignedMessage, error) {
	msg := Message{
		RoomOwner: params.Owner,
		Author:    authorKey.Address(),
		Time:      time,
		Content:   content,
	}
	sig, err := signRecord(authorKey, &msg)
	if err != nil {
		return SignedMessage{}, err
	}
	return SignedMessage{Message: msg, Signature: sig}, nil
}

func (m SignedMessage) ID() ids.ID {
	return signatureID(m.Signature)
}

func (m SignedMessage) Compare(o SignedMessage) int {
	if m.Message.Time != o.Message.Time {
		if m.Message.Time < o.Message.Time {
			return -1
		}
		return 1
	}
	if cmp := m.Message.Author.Compare(o.Message.Author); cmp != 0 {
		return cmp
	}
	return m.ID().Compare(o.ID())
}

func (m SignedMessage) verifyRecord(parent *State, params *Parameters) error {
	if m.Message.RoomOwner != params.Owner {
		return fmt.Errorf("%w: message bound to a different room", scaffold.ErrMalformed)
	}
	maxSize := parent.Configuration.Configuration.MaxMessageSize
	if uint32(len(m.Message.Content)) > maxSize {
		return fmt.Errorf("%w: message of %d bytes exceeds the maximum of %d", scaffold.ErrPolicyViolation, len(m.Message.Content), maxSize)
	}
	signer, err := recoverSigner(&m.Message, m.Signature)
	if err != nil {
		return err
	}
	if signer != m.Message.Author {
		return fmt.Errorf("%w: message not signed by its author", scaffold.ErrUnauthorized)
	}
	if !parent.Members.isEffective(m.Message.Author, parent, params) {
		return fmt.Errorf("%w: message author %s is not a room member", scaffold.ErrUnauthorized, m.Message.Author)
	}
	return nil
}

// Messages is the append-only log of recent messages, kept sorted by the
// (Time, Author, ID) total order and capped at MaxRecentMessages. Merge is
// union followed by deterministic truncation of the oldest entries, which
// keeps it a semilattice join: commutative, associative and idempotent.
type Messages struct {
	Records []SignedMessage `serialize:"true" json:"records"`
}

// retainAuthorized drops messages whose author lost effective membership,
// typically after a ban merged in the same cycle. Called during composite
// canonicalization once sibling leaves are settled.
func (m *Messages) retainAuthorized(parent *State, params *Parameters) {
	kept := m.Records[:0]
	for _, r := range m.Records {
		if parent.Members.isEffective(r.Message.Author, parent, params) {
			kept = append(kept, r)
		}
	}
	m.Records = kept
}

func (m *Messages) truncate(maxRecent uint32) {
	if uint32(len(m.Records)) > maxRecent {
		m.Records = m.Records[uint32(len(m.Records))-maxRecent:]
	}
}

func (m *Messages) Verify(parent *State, params *Parameters) error {
	if !utils.IsSortedAndUnique(m.Records) {
		return fmt.Errorf("%w: messages not sorted and unique", scaffold.ErrMalformed)
	}
	maxRecent := parent.Configuration.Configuration.MaxRecentMessages
	if uint32(len(m.Records)) > maxRecent {
		return fmt.Errorf("%w: %d messages exceed the maximum of %d", scaffold.ErrPolicyViolation, len(m.Records), maxRecent)
	}
	for _, r := range m.Records {
		if err := r.verifyRecord(parent, params); err != nil {
			return err
		}
	}
	return nil
}

func (m *Messages) Summarize(*State, *Parameters) []ids.ID {
	out := make([]ids.ID, len(m.Records))
	for i, r := range m.Records {
		out[i] = r.ID()
	}
	utils.Sort(out)
	return out
}

func (m *Messages) Delta(_ *State, _ *Parameters, old *[]ids.ID) ([]SignedMessage, bool) {
	known := set.Of(*old...)
	var delta []SignedMessage
	for _, r := range m.Records {
		if !known.Contains(r.ID()) {
			delta = append(delta, r)
		}
	}
	return delta, len(delta) > 0
}

func (m *Messages) ApplyDelta(parent *State, params *Parameters, delta []SignedMessage) error {
	current := make(set.Set[ids.ID], len(m.Records))
	for _, r := range m.Records {
		current.Add(r.ID())
	}

	merged := make([]SignedMessage, len(m.Records), len(m.Records)+len(delta))
	copy(merged, m.Records)
	for _, candidate := range delta {
		if current.Contains(candidate.ID()) {
			continue
		}
		if err := candidate.verifyRecord(parent, params); err != nil {
			return fmt.Errorf("invalid message delta: %w", err)
		}
		current.Add(candidate.ID())
		merged = append(merged, candidate)
	}
	utils.Sort(merged)

	updated := Messages{Records: merged}
	updated.retainAuthorized(parent, params)
	updated.truncate(parent.Configuration.Configuration.MaxRecentMessages)
	m.Records = updated.Records
	return nil
}
