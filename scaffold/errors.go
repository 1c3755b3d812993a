// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scaffold

import "errors"

// Verification and merge failures wrap exactly one of these sentinels so
// that drivers can branch on the class of failure without parsing messages.
var (
	// ErrMalformed marks a candidate that is structurally invalid. The
	// candidate is rejected and no state changes.
	ErrMalformed = errors.New("malformed candidate")

	// ErrUnauthorized marks a candidate whose signature or permission
	// check failed. The candidate is rejected and should be treated as a
	// potential attack.
	ErrUnauthorized = errors.New("unauthorized candidate")

	// ErrPolicyViolation marks a candidate that is well formed and
	// correctly signed but violates an ordering, uniqueness or capacity
	// rule.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrInternalInvariant marks a merge that produced a value failing
	// verification even though its inputs were verified. This is fatal to
	// the local replica's consistency: the resulting value must not be
	// persisted and synchronization for the tree should stop.
	ErrInternalInvariant = errors.New("internal merge invariant broken")
)
