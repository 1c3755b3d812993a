// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"fmt"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"

	"github.com/luxfi/roomstate/scaffold"
	"github.com/luxfi/roomstate/utils/hashing"
)

// Signature is a recoverable secp256k1 signature over the codec bytes of an
// unsigned record. Record identity is derived from the signature bytes, so
// two distinct signings of the same payload are distinct records.
type Signature [secp256k1.SignatureLen]byte

var emptySignature Signature

// signRecord marshals an unsigned record and signs its codec bytes.
func signRecord(key *secp256k1.PrivateKey, unsigned interface{}) (Signature, error) {
	b, err := Codec.Marshal(CodecVersion, unsigned)
	if err != nil {
		return emptySignature, err
	}
	sig, err := key.Sign(b)
	if err != nil {
		return emptySignature, err
	}
	var out Signature
	copy(out[:], sig)
	return out, nil
}

// recoverSigner returns the address that signed the record. The caller
// compares it against whichever member ID claims authorship; key material
// itself never enters the state tree.
func recoverSigner(unsigned interface{}, sig Signature) (ids.ShortID, error) {
	b, err := Codec.Marshal(CodecVersion, unsigned)
	if err != nil {
		return ids.ShortEmpty, fmt.Errorf("%w: %s", scaffold.ErrMalformed, err)
	}
	pk, err := secp256k1.RecoverPublicKey(b, sig[:])
	if err != nil {
		return ids.ShortEmpty, fmt.Errorf("%w: %s", scaffold.ErrUnauthorized, err)
	}
	return pk.Address(), nil
}

// signatureID content-addresses a record by its signature bytes.
func signatureID(sig Signature) ids.ID {
	return hashing.ComputeHash256Array(sig[:])
}

// RevisionSummary identifies the current revision of a single-value leaf.
// The record ID disambiguates conflicting records signed at the same
// version; without it two replicas holding such records would each
// believe the other current and never exchange the winner.
type RevisionSummary struct {
	Version uint64 `serialize:"true" json:"version"`
	Record  ids.ID `serialize:"true" json:"record"`
}
