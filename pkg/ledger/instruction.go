// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import (
	"encoding/binary"
	"fmt"
)

// Tag is the leading byte of an encoded instruction.
type Tag uint8

const (
	TagInitialize Tag = iota
	TagAddPoints
	TagCheckIn
	TagAdView
	TagReferral
	TagCommunityCredit
)

func (t Tag) String() string {
	switch t {
	case TagInitialize:
		return "initialize"
	case TagAddPoints:
		return "add_points"
	case TagCheckIn:
		return "check_in"
	case TagAdView:
		return "ad_view"
	case TagReferral:
		return "referral"
	case TagCommunityCredit:
		return "community_credit"
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// payloadSize returns the fixed payload width for t, or -1 when t is unknown.
func (t Tag) payloadSize() int {
	switch t {
	case TagInitialize:
		return 0
	case TagAddPoints, TagCheckIn, TagAdView, TagCommunityCredit:
		return 8
	case TagReferral:
		return IdentitySize
	}
	return -1
}

// Instruction is one decoded action descriptor.
type Instruction interface {
	Tag() Tag

	// MarshalBinary returns the wire form: tag byte followed by the payload.
	MarshalBinary() ([]byte, error)
}

// Initialize registers the target identity.
type Initialize struct{}

// AddPoints credits Amount points to the signer's own account.
type AddPoints struct {
	Amount uint64
}

// CheckIn is the daily check-in at unix time Timestamp.
type CheckIn struct {
	Timestamp uint64
}

// AdView records one rewarded ad view at unix time Timestamp.
type AdView struct {
	Timestamp uint64
}

// Referral registers Referred on behalf of the signer.
type Referral struct {
	Referred Identity
}

// CommunityCredit is an admin grant of Amount points.
type CommunityCredit struct {
	Amount uint64
}

func (Initialize) Tag() Tag      { return TagInitialize }
func (AddPoints) Tag() Tag       { return TagAddPoints }
func (CheckIn) Tag() Tag         { return TagCheckIn }
func (AdView) Tag() Tag          { return TagAdView }
func (Referral) Tag() Tag        { return TagReferral }
func (CommunityCredit) Tag() Tag { return TagCommunityCredit }

func (Initialize) MarshalBinary() ([]byte, error) {
	return []byte{byte(TagInitialize)}, nil
}

func (i AddPoints) MarshalBinary() ([]byte, error) {
	return encodeUint64(TagAddPoints, i.Amount), nil
}

func (i CheckIn) MarshalBinary() ([]byte, error) {
	return encodeUint64(TagCheckIn, i.Timestamp), nil
}

func (i AdView) MarshalBinary() ([]byte, error) {
	return encodeUint64(TagAdView, i.Timestamp), nil
}

func (i Referral) MarshalBinary() ([]byte, error) {
	out := make([]byte, 1+IdentitySize)
	out[0] = byte(TagReferral)
	copy(out[1:], i.Referred[:])
	return out, nil
}

func (i CommunityCredit) MarshalBinary() ([]byte, error) {
	return encodeUint64(TagCommunityCredit, i.Amount), nil
}

func encodeUint64(t Tag, v uint64) []byte {
	out := make([]byte, 9)
	out[0] = byte(t)
	binary.LittleEndian.PutUint64(out[1:], v)
	return out
}

// Decode parses raw instruction bytes. Bytes past the tag's fixed payload
// are ignored.
func Decode(raw []byte) (Instruction, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDecode)
	}
	tag, rest := Tag(raw[0]), raw[1:]
	size := tag.payloadSize()
	if size < 0 {
		return nil, fmt.Errorf("%w: unknown tag %d", ErrDecode, raw[0])
	}
	if len(rest) < size {
		return nil, fmt.Errorf("%w: %s needs %d payload bytes, got %d", ErrDecode, tag, size, len(rest))
	}

	switch tag {
	case TagInitialize:
		return Initialize{}, nil
	case TagAddPoints:
		return AddPoints{Amount: binary.LittleEndian.Uint64(rest)}, nil
	case TagCheckIn:
		return CheckIn{Timestamp: binary.LittleEndian.Uint64(rest)}, nil
	case TagAdView:
		return AdView{Timestamp: binary.LittleEndian.Uint64(rest)}, nil
	case TagReferral:
		var r Referral
		copy(r.Referred[:], rest[:IdentitySize])
		return r, nil
	default: // TagCommunityCredit
		return CommunityCredit{Amount: binary.LittleEndian.Uint64(rest)}, nil
	}
}
