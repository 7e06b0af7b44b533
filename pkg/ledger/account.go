// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// IdentitySize is the byte length of an Identity.
	IdentitySize = 32

	// MaxAdViews is the number of ad views rewarded per window.
	MaxAdViews uint8 = 5

	// fixed part of an encoded record, referrals follow
	recordHeaderSize = IdentitySize + 8 + 8 + 1 + 4 + 4
)

// Identity is the immutable key of an Account.
type Identity [IdentitySize]byte

// ParseIdentity decodes a base58 rendered identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	bs, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: identity %q: %v", ErrInvalidArgument, s, err)
	}
	if len(bs) != IdentitySize {
		return id, fmt.Errorf("%w: identity %q has %d bytes", ErrInvalidArgument, s, len(bs))
	}
	copy(id[:], bs)
	return id, nil
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether id is all zero bytes.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Account is the per-identity points record.
type Account struct {
	Identity     Identity
	Points       uint64
	LastCheckIn  uint64 // unix seconds, 0 before the first check-in
	AdViewsToday uint8
	Referrals    []Identity
	Number       uint32
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Referrals != nil {
		out.Referrals = make([]Identity, len(a.Referrals))
		copy(out.Referrals, a.Referrals)
	}
	return &out
}

// HasReferred reports whether id is already in a's referrals.
func (a *Account) HasReferred(id Identity) bool {
	for i := range a.Referrals {
		if a.Referrals[i] == id {
			return true
		}
	}
	return false
}

// MarshalBinary encodes a into its canonical record form. Every store
// persists this form, so equal accounts always produce equal bytes.
func (a *Account) MarshalBinary() ([]byte, error) {
	out := make([]byte, recordHeaderSize+IdentitySize*len(a.Referrals))
	copy(out, a.Identity[:])
	off := IdentitySize
	binary.LittleEndian.PutUint64(out[off:], a.Points)
	off += 8
	binary.LittleEndian.PutUint64(out[off:], a.LastCheckIn)
	off += 8
	out[off] = a.AdViewsToday
	off++
	binary.LittleEndian.PutUint32(out[off:], a.Number)
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(len(a.Referrals)))
	off += 4
	for i := range a.Referrals {
		copy(out[off:], a.Referrals[i][:])
		off += IdentitySize
	}
	return out, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (a *Account) UnmarshalBinary(data []byte) error {
	if len(data) < recordHeaderSize {
		return fmt.Errorf("account record: %d bytes is too short", len(data))
	}
	var out Account
	copy(out.Identity[:], data)
	off := IdentitySize
	out.Points = binary.LittleEndian.Uint64(data[off:])
	off += 8
	out.LastCheckIn = binary.LittleEndian.Uint64(data[off:])
	off += 8
	out.AdViewsToday = data[off]
	off++
	out.Number = binary.LittleEndian.Uint32(data[off:])
	off += 4
	n := binary.LittleEndian.Uint32(data[off:])
	off += 4

	if out.AdViewsToday > MaxAdViews {
		return fmt.Errorf("account record: ad views %d out of range", out.AdViewsToday)
	}
	if uint64(len(data)-off) != uint64(n)*IdentitySize {
		return fmt.Errorf("account record: expected %d referrals, have %d bytes", n, len(data)-off)
	}
	if n > 0 {
		out.Referrals = make([]Identity, n)
		for i := range out.Referrals {
			copy(out.Referrals[i][:], data[off:])
			off += IdentitySize
		}
	}
	*a = out
	return nil
}

// DecodeAccount is shorthand for UnmarshalBinary into a new Account.
func DecodeAccount(data []byte) (*Account, error) {
	var a Account
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &a, nil
}
