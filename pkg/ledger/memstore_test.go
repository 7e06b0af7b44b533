// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger_test

import (
	"testing"

	"github.com/moov-io/points/pkg/ledger"
	"github.com/moov-io/points/pkg/ledger/ledgertest"
)

func TestMemoryStore(t *testing.T) {
	ledgertest.RunStoreTests(t, func(t *testing.T) ledger.Store {
		return ledger.NewMemoryStore()
	})
}
