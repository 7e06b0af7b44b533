// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import (
	"crypto/subtle"
	"strings"
)

// Caller carries the credentials presented with an instruction.
type Caller struct {
	// Signer is the identity that signed the instruction.
	Signer Identity

	// Admin is the out-of-band admin credential, empty for ordinary callers.
	Admin string
}

// AdminSet is the fixed set of admin credentials allowed to grant community
// credit. It is resolved once at startup and not modified afterwards.
type AdminSet struct {
	keys []string
}

// NewAdminSet builds an AdminSet. Blank keys are dropped.
func NewAdminSet(keys ...string) AdminSet {
	var out AdminSet
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out.keys = append(out.keys, k)
		}
	}
	return out
}

// Contains reports whether key is an admin credential.
func (s AdminSet) Contains(key string) bool {
	if key == "" {
		return false
	}
	found := 0
	for i := range s.keys {
		found |= subtle.ConstantTimeCompare([]byte(s.keys[i]), []byte(key))
	}
	return found == 1
}

// Len returns the number of admin credentials.
func (s AdminSet) Len() int {
	return len(s.keys)
}

// Guard authorizes instructions before the engine touches any account.
type Guard struct {
	admins AdminSet
}

func NewGuard(admins AdminSet) *Guard {
	return &Guard{admins: admins}
}

// Authorize checks caller may apply inst to the target account.
// CommunityCredit needs an admin credential, everything else must be signed
// by the target itself.
func (g *Guard) Authorize(inst Instruction, caller Caller, target Identity) error {
	if _, ok := inst.(CommunityCredit); ok {
		if g == nil || !g.admins.Contains(caller.Admin) {
			return ErrUnauthorized
		}
		return nil
	}
	if caller.Signer.IsZero() || caller.Signer != target {
		return ErrUnauthorized
	}
	return nil
}
