// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package buntdbstore

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/moov-io/points/pkg/ledger"
	"github.com/moov-io/points/pkg/ledger/ledgertest"
)

var (
	flagDebug = flag.Bool("debug", false, "Create db inside project dir for tests")
)

func makeStore(t *testing.T) *Store {
	t.Helper()

	filename := "store_test.db"
	if *flagDebug {
		os.Remove(filename)
	} else {
		filename = filepath.Join(t.TempDir(), filename)
	}
	s, err := New(filename)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
	})
	return s
}

func TestStore(t *testing.T) {
	ledgertest.RunStoreTests(t, func(t *testing.T) ledger.Store {
		return makeStore(t)
	})
}

func TestStore__memory(t *testing.T) {
	ledgertest.RunStoreTests(t, func(t *testing.T) ledger.Store {
		s, err := New(":memory:")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore__reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}

	id := ledgertest.Identity(1)
	if _, err := s.Create(id); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	acct, err := s.Get(id)
	if err != nil {
		t.Fatalf("got %v", err)
	}
	if acct.Number != 1 {
		t.Errorf("got number %d", acct.Number)
	}
	if n, err := s.Count(); err != nil || n != 1 {
		t.Errorf("got n=%d, err=%v", n, err)
	}

	acct, err = s.Create(ledgertest.Identity(2))
	if err != nil {
		t.Fatal(err)
	}
	if acct.Number != 2 {
		t.Errorf("got number %d", acct.Number)
	}
}

func TestStore__unlockedIdentity(t *testing.T) {
	s := makeStore(t)

	err := s.Update([]ledger.Identity{ledgertest.Identity(1)}, func(tx ledger.Txn) error {
		_, err := tx.Create(ledgertest.Identity(2))
		return err
	})
	if err == nil {
		t.Error("expected error")
	}
	if _, err := s.Get(ledgertest.Identity(2)); err != ledger.ErrNotFound {
		t.Errorf("got %v", err)
	}
}
