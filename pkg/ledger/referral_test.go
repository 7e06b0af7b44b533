// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferralReward(t *testing.T) {
	expected := []uint64{50, 25, 12, 6, 3, 1, 0}
	for count, want := range expected {
		require.Equal(t, want, ReferralReward(count), "count=%d", count)
	}

	// non-increasing and never panics on huge counts
	prev := ReferralReward(0)
	for count := 1; count < 200; count++ {
		v := ReferralReward(count)
		require.LessOrEqual(t, v, prev)
		prev = v
	}
	require.Zero(t, ReferralReward(64))
}
