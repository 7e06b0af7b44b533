// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/go-kit/kit/log"

	"github.com/moov-io/points/pkg/buntdbstore"
	"github.com/moov-io/points/pkg/ledger"
	"github.com/moov-io/points/pkg/ledger/ledgertest"
)

func makeSqliteStore(t *testing.T) *sqliteAccountStore {
	t.Helper()

	s, err := newSqliteAccountStore(log.NewNopLogger(), filepath.Join(t.TempDir(), "points.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSqlite__store(t *testing.T) {
	ledgertest.RunStoreTests(t, func(t *testing.T) ledger.Store {
		return makeSqliteStore(t)
	})
}

func TestSqlite__getSqlitePath(t *testing.T) {
	cases := []struct {
		input, expected string
	}{
		{"", "points.db"},
		{"../etc/passwd", "points.db"},
		{"ledger.db", "ledger.db"},
		{":memory:", ":memory:"},
	}
	for i := range cases {
		if v := getSqlitePath(cases[i].input); v != cases[i].expected {
			t.Errorf("input=%q got %q", cases[i].input, v)
		}
	}
}

func TestSqlite__migrateTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.db")

	s, err := newSqliteAccountStore(log.NewNopLogger(), path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ledgertest.Identity(1)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// migrations are idempotent and keep the counter
	s, err = newSqliteAccountStore(log.NewNopLogger(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	acct, err := s.Create(ledgertest.Identity(2))
	if err != nil {
		t.Fatal(err)
	}
	if acct.Number != 2 {
		t.Errorf("got number %d", acct.Number)
	}

	var seen []uint32
	err = s.ForEach(func(acct *ledger.Account) error {
		seen = append(seen, acct.Number)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("got %v", seen)
	}
}

// The sqlite ledger and the BuntDB mirror fed the same instruction bytes
// end with byte-identical records.
func TestSqlite__matchesMirror(t *testing.T) {
	mirrorStore, err := buntdbstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer mirrorStore.Close()

	ledgerStore := makeSqliteStore(t)
	guard := ledger.NewGuard(ledger.NewAdminSet("admin"))
	engines := []*ledger.Engine{ledger.NewEngine(ledgerStore, guard), ledger.NewEngine(mirrorStore, guard)}

	var ids []ledger.Identity
	for i := 1; i <= 5; i++ {
		ids = append(ids, ledgertest.Identity(i))
	}
	all := append([]ledger.Identity{}, ids...)

	rng := rand.New(rand.NewSource(7))
	now := uint64(testNow.Unix())
	for step := 0; step < 1500; step++ {
		target := ids[rng.Intn(len(ids))]
		caller := ledger.Caller{Signer: target}
		now += uint64(rng.Intn(int(ledger.Window / 4)))

		var inst ledger.Instruction
		switch rng.Intn(7) {
		case 0:
			inst = ledger.Initialize{}
		case 1:
			inst = ledger.AddPoints{Amount: uint64(rng.Intn(100))}
		case 2:
			inst = ledger.CheckIn{Timestamp: now}
		case 3, 4:
			inst = ledger.AdView{Timestamp: now}
		case 5:
			referred := ledgertest.Identity(100 + rng.Intn(64))
			all = append(all, referred)
			inst = ledger.Referral{Referred: referred}
		case 6:
			inst = ledger.CommunityCredit{Amount: uint64(rng.Intn(1000))}
			caller = ledger.Caller{Admin: "admin"}
		}
		raw, err := inst.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}

		r1, err1 := engines[0].Apply(caller, target, raw)
		r2, err2 := engines[1].Apply(caller, target, raw)
		if ledger.Reason(err1) != ledger.Reason(err2) {
			t.Fatalf("step %d: ledger=%v mirror=%v", step, err1, err2)
		}
		if err1 != nil {
			continue
		}
		if !sameAccount(r1.Account, r2.Account) || !sameAccount(r1.Created, r2.Created) {
			t.Fatalf("step %d: ledger=%#v mirror=%#v", step, r1.Account, r2.Account)
		}
	}

	for _, id := range all {
		a1, err1 := ledgerStore.Get(id)
		a2, err2 := mirrorStore.Get(id)
		if err1 != err2 {
			t.Fatalf("%s: ledger=%v mirror=%v", id, err1, err2)
		}
		if err1 != nil {
			continue
		}
		b1, _ := a1.MarshalBinary()
		b2, _ := a2.MarshalBinary()
		if !bytes.Equal(b1, b2) {
			t.Errorf("%s: ledger=%#v mirror=%#v", id, a1, a2)
		}
	}
}
