// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdminSet(t *testing.T) {
	set := NewAdminSet("admin_key_1", " ", "", " admin_key_2 ")
	require.Equal(t, 2, set.Len())
	require.True(t, set.Contains("admin_key_1"))
	require.True(t, set.Contains("admin_key_2"))
	require.False(t, set.Contains(""))
	require.False(t, set.Contains("admin_key"))
	require.False(t, set.Contains("admin_key_10"))
}

func TestGuard(t *testing.T) {
	alice, bob := Identity{1}, Identity{2}
	g := NewGuard(NewAdminSet("admin"))

	require.NoError(t, g.Authorize(CheckIn{}, Caller{Signer: alice}, alice))
	require.NoError(t, g.Authorize(Referral{Referred: bob}, Caller{Signer: alice}, alice))
	require.ErrorIs(t, g.Authorize(AdView{}, Caller{Signer: bob}, alice), ErrUnauthorized)
	require.ErrorIs(t, g.Authorize(AddPoints{}, Caller{}, Identity{}), ErrUnauthorized)

	// admins are not account owners
	require.ErrorIs(t, g.Authorize(AddPoints{Amount: 1}, Caller{Admin: "admin"}, alice), ErrUnauthorized)

	require.NoError(t, g.Authorize(CommunityCredit{Amount: 1}, Caller{Admin: "admin"}, alice))
	require.ErrorIs(t, g.Authorize(CommunityCredit{Amount: 1}, Caller{Signer: alice}, alice), ErrUnauthorized)
	require.ErrorIs(t, g.Authorize(CommunityCredit{Amount: 1}, Caller{Admin: "nope"}, alice), ErrUnauthorized)

	var nilGuard *Guard
	require.ErrorIs(t, nilGuard.Authorize(CommunityCredit{Amount: 1}, Caller{Admin: "admin"}, alice), ErrUnauthorized)
}
