// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package room

import (
	"fmt"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
	"github.com/luxfi/utils"

	"github.com/luxfi/roomstate/scaffold"
)

var _ scaffold.State[State, Parameters, []MemberInfoVersion, []SignedMemberInfo] = (*MemberInfoLog)(nil)

// MemberInfo is a member's self-published profile, versioned by the member
// so stale revisions lose deterministically.
type MemberInfo struct {
	RoomOwner ids.ShortID `serialize:"true" json:"roomOwner"`
	MemberID  ids.ShortID `serialize:"true" json:"memberId"`
	Version   uint64      `serialize:"true" json:"version"`
	Nickname  string      `serialize:"true" json:"nickname"`
}

type SignedMemberInfo struct {
	MemberInfo MemberInfo `serialize:"true" json:"memberInfo"`
	Signature  Signature  `serialize:"true" json:"signature"`
}

// NewSignedMemberInfo publishes a profile revision signed by the member it
// describes.
func NewSignedMemberInfo(params *Parameters, version uint64, nickname string, memberKey *secp256k1.PrivateKey) (SignedMemberInfo, error) {
	info := MemberInfo{
		RoomOwner: params.Owner,
		MemberID:  memberKey.Address(),
		Version:   version,
		Nickname:  nickname,
	}
	sig, err := signRecord(memberKey, &info)
	if err != nil {
		return SignedMemberInfo{}, err
	}
	return SignedMemberInfo{MemberInfo: info, Signature: sig}, nil
}

func (i SignedMemberInfo) ID() ids.ID {
	return signatureID(i.Signature)
}

func (i SignedMemberInfo) Compare(o SignedMemberInfo) int {
	return i.MemberInfo.MemberID.Compare(o.MemberInfo.MemberID)
}

// supersedes reports whether i wins over other for the same member under
// the (Version, record ID) total order.
func (i SignedMemberInfo) supersedes(other SignedMemberInfo) bool {
	if i.MemberInfo.Version != other.MemberInfo.Version {
		return i.MemberInfo.Version > other.MemberInfo.Version
	}
	return i.ID().Compare(other.ID()) < 0
}

func (i SignedMemberInfo) verifyRecord(parent *State, params *Parameters) error {
	if i.MemberInfo.RoomOwner != params.Owner {
		return fmt.Errorf("%w: member info bound to a different room", scaffold.ErrMalformed)
	}
	maxNickname := parent.Configuration.Configuration.MaxNicknameSize
	if uint32(len(i.MemberInfo.Nickname)) > maxNickname {
		return fmt.Errorf("%w: nickname of %d bytes exceeds the maximum of %d", scaffold.ErrPolicyViolation, len(i.MemberInfo.Nickname), maxNickname)
	}
	signer, err := recoverSigner(&i.MemberInfo, i.Signature)
	if err != nil {
		return err
	}
	if signer != i.MemberInfo.MemberID {
		return fmt.Errorf("%w: member info not signed by the member it describes", scaffold.ErrUnauthorized)
	}
	if !parent.Members.isEffective(i.MemberInfo.MemberID, parent, params) {
		return fmt.Errorf("%w: member info for %s, who is not a room member", scaffold.ErrUnauthorized, i.MemberInfo.MemberID)
	}
	return nil
}

// MemberInfoVersion is the summary entry for one member's profile. The
// record ID disambiguates conflicting records a member signed at the same
// version.
type MemberInfoVersion struct {
	Member  ids.ShortID `serialize:"true" json:"member"`
	Version uint64      `serialize:"true" json:"version"`
	Record  ids.ID      `serialize:"true" json:"record"`
}

// MemberInfoLog holds at most one profile record per member, sorted by
// member ID, merged last-writer-wins per member.
type MemberInfoLog struct {
	Records []SignedMemberInfo `serialize:"true" json:"records"`
}

// Nickname returns the published nickname for a member, if any.
func (l *MemberInfoLog) Nickname(id ids.ShortID) (string, bool) {
	for _, r := range l.Records {
		if r.MemberInfo.MemberID == id {
			return r.MemberInfo.Nickname, true
		}
	}
	return "", false
}

// retainAuthorized drops records for users who lost effective membership.
// Called during composite canonicalization once sibling leaves are settled.
func (l *MemberInfoLog) retainAuthorized(parent *State, params *Parameters) {
	kept := l.Records[:0]
	for _, r := range l.Records {
		if parent.Members.isEffective(r.MemberInfo.MemberID, parent, params) {
			kept = append(kept, r)
		}
	}
	l.Records = kept
}

func (l *MemberInfoLog) Verify(parent *State, params *Parameters) error {
	if !utils.IsSortedAndUnique(l.Records) {
		return fmt.Errorf("%w: member info records not sorted and unique", scaffold.ErrMalformed)
	}
	for _, r := range l.Records {
		if err := r.verifyRecord(parent, params); err != nil {
			return err
		}
	}
	return nil
}

func (l *MemberInfoLog) Summarize(*State, *Parameters) []MemberInfoVersion {
	out := make([]MemberInfoVersion, len(l.Records))
	for i, r := range l.Records {
		out[i] = MemberInfoVersion{
			Member:  r.MemberInfo.MemberID,
			Version: r.MemberInfo.Version,
			Record:  r.ID(),
		}
	}
	return out
}

func (l *MemberInfoLog) Delta(_ *State, _ *Parameters, old *[]MemberInfoVersion) ([]SignedMemberInfo, bool) {
	known := make(map[ids.ShortID]MemberInfoVersion, len(*old))
	for _, entry := range *old {
		known[entry.Member] = entry
	}
	var delta []SignedMemberInfo
	for _, r := range l.Records {
		entry, ok := known[r.MemberInfo.MemberID]
		switch {
		case !ok:
			delta = append(delta, r)
		case entry.Record == r.ID():
		case r.MemberInfo.Version > entry.Version,
			r.MemberInfo.Version == entry.Version && r.ID().Compare(entry.Record) < 0:
			delta = append(delta, r)
		}
	}
	return delta, len(delta) > 0
}

func (l *MemberInfoLog) ApplyDelta(parent *State, params *Parameters, delta []SignedMemberInfo) error {
	merged := make(map[ids.ShortID]SignedMemberInfo, len(l.Records))
	for _, r := range l.Records {
		merged[r.MemberInfo.MemberID] = r
	}
	for _, candidate := range delta {
		if err := candidate.verifyRecord(parent, params); err != nil {
			return fmt.Errorf("invalid member info delta: %w", err)
		}
		existing, ok := merged[candidate.MemberInfo.MemberID]
		if !ok || candidate.supersedes(existing) {
			merged[candidate.MemberInfo.MemberID] = candidate
		}
	}

	records := make([]SignedMemberInfo, 0, len(merged))
	for _, r := range merged {
		records = append(records, r)
	}
	utils.Sort(records)
	l.Records = records
	return nil
}
