// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import (
	"crypto/sha256"

	"github.com/luxfi/ids"
)

const HashLen = sha256.Size

// ComputeHash256 returns the sha256 digest of buf.
func ComputeHash256(buf []byte) []byte {
	digest := sha256.Sum256(buf)
	return digest[:]
}

// ComputeHash256Array returns the sha256 digest of buf as an ID, the form
// used to content-address records.
func ComputeHash256Array(buf []byte) ids.ID {
	return ids.ID(sha256.Sum256(buf))
}
