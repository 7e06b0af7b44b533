// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"strings"

	"lukechampine.com/blake3"

	"github.com/moov-io/points/pkg/ledger"
)

const maxUserIDLength = 128

var errInvalidUserID = errors.New("invalid user_id")

// cleanUserID normalizes the user ids clients send us.
//
// Ids are trimmed and lowercased so "Alice " and "alice" are the same
// user. Callers should be aware of when an empty string is returned.
func cleanUserID(userID string) string {
	userID = strings.ToLower(strings.TrimSpace(userID))
	if len(userID) > maxUserIDLength {
		return ""
	}
	return userID
}

// identityFor maps a user id onto its ledger identity. Wallets are
// provisioned elsewhere, the ledger only needs a stable 32 byte key.
func identityFor(userID string) (ledger.Identity, error) {
	clean := cleanUserID(userID)
	if clean == "" {
		return ledger.Identity{}, errInvalidUserID
	}
	return ledger.Identity(blake3.Sum256([]byte(clean))), nil
}
