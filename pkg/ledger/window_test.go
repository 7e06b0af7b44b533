// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestElapsed(t *testing.T) {
	const t0 = 1_700_000_000

	cases := []struct {
		last, now uint64
		elapsed   bool
	}{
		{0, t0, true},
		{t0, t0, false},
		{t0, t0 + 1, false},
		{t0, t0 + Window - 1, false},
		{t0, t0 + Window, true},
		{t0, t0 + 3*Window, true},
		{t0, t0 - 1, false}, // clock went backwards
	}
	for i := range cases {
		require.Equal(t, cases[i].elapsed, Elapsed(cases[i].last, cases[i].now), "case #%d", i)
	}

	require.True(t, WindowElapsed(10, 20, 10))
	require.False(t, WindowElapsed(10, 19, 10))
}
