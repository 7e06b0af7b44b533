// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"golang.org/x/sync/errgroup"

	"github.com/moov-io/points/pkg/buntdbstore"
	"github.com/moov-io/points/pkg/ledger"
)

func makeService(t *testing.T, ledgerStore *sqliteAccountStore) (*pointsService, *buntdbstore.Store) {
	t.Helper()

	mirrorStore, err := buntdbstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mirrorStore.Close() })

	svc := newPointsService(log.NewNopLogger(), ledgerStore, mirrorStore, ledger.NewAdminSet("admin"))
	svc.now = func() time.Time { return testNow }
	return svc, mirrorStore
}

func inSync(t *testing.T, svc *pointsService, id ledger.Identity) {
	t.Helper()

	a, err := svc.ledgerStore.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.mirrorStore.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if !sameAccount(a, b) {
		t.Errorf("ledger %#v != mirror %#v", a, b)
	}
}

func TestService__replay(t *testing.T) {
	svc, _ := makeService(t, makeSqliteStore(t))
	id, _ := identityFor("alice")
	self := ledger.Caller{Signer: id}

	if _, err := svc.submit(self, id, ledger.Initialize{}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.submit(self, id, ledger.CheckIn{Timestamp: svc.timestamp()}); err != nil {
		t.Fatal(err)
	}
	inSync(t, svc, id)

	// rejected instructions touch neither side
	if _, err := svc.submit(self, id, ledger.CheckIn{Timestamp: svc.timestamp()}); err == nil {
		t.Fatal("expected error")
	}
	inSync(t, svc, id)
}

func TestService__resyncOnDivergence(t *testing.T) {
	svc, mirror := makeService(t, makeSqliteStore(t))
	id, _ := identityFor("alice")
	self := ledger.Caller{Signer: id}

	if _, err := svc.submit(self, id, ledger.Initialize{}); err != nil {
		t.Fatal(err)
	}

	// corrupt the mirror's copy
	err := mirror.Update([]ledger.Identity{id}, func(tx ledger.Txn) error {
		acct, err := tx.Get(id)
		if err != nil {
			return err
		}
		acct.Points = 999
		return tx.Put(acct)
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.submit(self, id, ledger.AdView{Timestamp: svc.timestamp()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Account.Points != 5 {
		t.Errorf("got %d", res.Account.Points)
	}
	inSync(t, svc, id)

	acct, err := svc.lookup(id)
	if err != nil {
		t.Fatal(err)
	}
	if acct.Points != 5 {
		t.Errorf("got %d", acct.Points)
	}
}

func TestService__resyncReferral(t *testing.T) {
	svc, mirror := makeService(t, makeSqliteStore(t))
	alice, _ := identityFor("alice")
	bob, _ := identityFor("bob")

	if _, err := svc.submit(ledger.Caller{Signer: alice}, alice, ledger.Initialize{}); err != nil {
		t.Fatal(err)
	}

	// bob exists only in the mirror, so the mirror rejects the referral
	if _, err := mirror.Create(bob); err != nil {
		t.Fatal(err)
	}

	res, err := svc.submit(ledger.Caller{Signer: alice}, alice, ledger.Referral{Referred: bob})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created == nil || res.Created.Identity != bob {
		t.Fatalf("got %#v", res.Created)
	}
	inSync(t, svc, alice)
	inSync(t, svc, bob)
}

func TestService__lookupFallback(t *testing.T) {
	ledgerStore := makeSqliteStore(t)
	svc, mirror := makeService(t, ledgerStore)
	id, _ := identityFor("alice")

	if _, err := ledgerStore.Create(id); err != nil {
		t.Fatal(err)
	}
	if _, err := mirror.Get(id); err != ledger.ErrNotFound {
		t.Fatalf("expected ErrNotFound: %v", err)
	}

	acct, err := svc.lookup(id)
	if err != nil {
		t.Fatal(err)
	}
	if acct.Number != 1 {
		t.Errorf("got %d", acct.Number)
	}
	inSync(t, svc, id)

	missing, _ := identityFor("nobody")
	if _, err := svc.lookup(missing); err != ledger.ErrNotFound {
		t.Errorf("expected ErrNotFound: %v", err)
	}
}

func TestService__warm(t *testing.T) {
	ledgerStore := makeSqliteStore(t)
	for _, name := range []string{"alice", "bob", "carol"} {
		id, _ := identityFor(name)
		if _, err := ledgerStore.Create(id); err != nil {
			t.Fatal(err)
		}
	}

	svc, mirror := makeService(t, ledgerStore)
	n, err := svc.warm()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("warmed %d accounts", n)
	}
	if count, err := mirror.Count(); err != nil || count != 3 {
		t.Errorf("mirror holds %d accounts: %v", count, err)
	}

	dave, _ := identityFor("dave")
	res, err := svc.submit(ledger.Caller{Signer: dave}, dave, ledger.Initialize{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Account.Number != 4 {
		t.Errorf("got %d", res.Account.Number)
	}
	inSync(t, svc, dave)
}

func TestService__identityLocks(t *testing.T) {
	var locks identityLocks
	alice, _ := identityFor("alice")
	bob, _ := identityFor("bob")

	// opposite orders and duplicates must not deadlock
	var group errgroup.Group
	for i := 0; i < 50; i++ {
		group.Go(func() error {
			unlock := locks.lock(alice, bob, alice)
			unlock()
			return nil
		})
		group.Go(func() error {
			unlock := locks.lock(bob, alice)
			unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatal(err)
	}

	ids := involved(alice, ledger.Referral{Referred: bob})
	if len(ids) != 2 || ids[0] != alice || ids[1] != bob {
		t.Errorf("got %v", ids)
	}
	if ids := involved(alice, ledger.AdView{}); len(ids) != 1 {
		t.Errorf("got %v", ids)
	}
}

// Mirror reads never go backwards while instructions and resyncs of the
// same accounts run concurrently.
func TestService__concurrentSubmits(t *testing.T) {
	svc, _ := makeService(t, makeSqliteStore(t))

	var ids []ledger.Identity
	for i := 0; i < 8; i++ {
		id, _ := identityFor(fmt.Sprintf("user-%d", i))
		if _, err := svc.submit(ledger.Caller{Signer: id}, id, ledger.Initialize{}); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	var (
		writers errgroup.Group
		readers errgroup.Group
		done    atomic.Bool
	)
	for _, id := range ids {
		id := id
		writers.Go(func() error {
			for i := 0; i < int(ledger.MaxAdViews); i++ {
				if _, err := svc.submit(ledger.Caller{Signer: id}, id, ledger.AdView{Timestamp: svc.timestamp()}); err != nil {
					return err
				}
			}
			return nil
		})
		writers.Go(func() error {
			for i := 0; i < 5; i++ {
				unlock := svc.locks.lock(id)
				err := svc.resync(id)
				unlock()
				if err != nil {
					return err
				}
			}
			return nil
		})
		readers.Go(func() error {
			var last uint64
			for !done.Load() {
				acct, err := svc.lookup(id)
				if err != nil {
					return err
				}
				if acct.Points < last {
					return fmt.Errorf("%s went from %d to %d points", id, last, acct.Points)
				}
				last = acct.Points
			}
			return nil
		})
	}
	if err := writers.Wait(); err != nil {
		t.Fatal(err)
	}
	done.Store(true)
	if err := readers.Wait(); err != nil {
		t.Fatal(err)
	}

	for _, id := range ids {
		inSync(t, svc, id)
		acct, err := svc.lookup(id)
		if err != nil {
			t.Fatal(err)
		}
		if acct.Points != uint64(ledger.MaxAdViews)*ledger.AdViewReward {
			t.Errorf("got %d", acct.Points)
		}
	}
}
