// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/kit/log"

	"github.com/moov-io/points/pkg/ledger"
)

// pointsService runs every instruction twice: first against the
// authoritative ledger, then against the mirrored cache that serves reads.
// Both sides run the same ledger.Engine code over their own store, so the
// records they produce must match byte for byte. When they don't, the
// mirror is rewritten from the ledger.
type pointsService struct {
	ledger      *ledger.Engine
	ledgerStore ledger.Store

	mirror      *ledger.Engine
	mirrorStore ledger.Store

	// locks serialize instructions per identity across both contexts
	locks identityLocks

	logger log.Logger
	now    func() time.Time
}

const identityLockStripes = 64

// identityLocks is a fixed set of mutexes striped by identity.
type identityLocks [identityLockStripes]sync.Mutex

// lock acquires the stripes of ids in index order and returns the release.
func (l *identityLocks) lock(ids ...ledger.Identity) func() {
	var idx []int
	for i := range ids {
		n := int(xxhash.Sum64(ids[i][:]) % identityLockStripes)
		seen := false
		for _, v := range idx {
			seen = seen || v == n
		}
		if !seen {
			idx = append(idx, n)
		}
	}
	sort.Ints(idx)
	for _, n := range idx {
		l[n].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			l[idx[i]].Unlock()
		}
	}
}

// involved lists every identity inst may write when applied to target.
func involved(target ledger.Identity, inst ledger.Instruction) []ledger.Identity {
	if r, ok := inst.(ledger.Referral); ok && r.Referred != target {
		return []ledger.Identity{target, r.Referred}
	}
	return []ledger.Identity{target}
}

func newPointsService(logger log.Logger, ledgerStore, mirrorStore ledger.Store, admins ledger.AdminSet) *pointsService {
	guard := ledger.NewGuard(admins)
	return &pointsService{
		ledger:      ledger.NewEngine(ledgerStore, guard),
		ledgerStore: ledgerStore,
		mirror:      ledger.NewEngine(mirrorStore, guard),
		mirrorStore: mirrorStore,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *pointsService) timestamp() uint64 {
	return uint64(s.now().Unix())
}

// submit applies inst to target on behalf of caller.
func (s *pointsService) submit(caller ledger.Caller, target ledger.Identity, inst ledger.Instruction) (*ledger.Result, error) {
	name := inst.Tag().String()
	raw, err := inst.MarshalBinary()
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(involved(target, inst)...)
	defer unlock()

	res, err := s.ledger.Apply(caller, target, raw)
	if err != nil {
		instructionsRejected.With("instruction", name, "reason", ledger.Reason(err)).Add(1)
		return nil, err
	}
	instructionsApplied.With("instruction", name).Add(1)
	pointsAwarded.With("instruction", name).Add(float64(res.Awarded))

	s.replay(caller, target, raw, res)
	return res, nil
}

// replay applies raw to the mirror and checks it reached the same records.
func (s *pointsService) replay(caller ledger.Caller, target ledger.Identity, raw []byte, want *ledger.Result) {
	got, err := s.mirror.Apply(caller, target, raw)
	if err == nil && sameAccount(want.Account, got.Account) && sameAccount(want.Created, got.Created) {
		return
	}

	mirrorDivergences.Add(1)
	ids := touched(target, want)
	s.logger.Log("mirror", "diverged from ledger", "instruction", want.Instruction.Tag(), "target", target, "error", err)
	if err := s.resync(ids...); err != nil {
		s.logger.Log("mirror", fmt.Sprintf("resync failed: %v", err))
	}
}

// touched lists the identities an instruction may have written.
func touched(target ledger.Identity, res *ledger.Result) []ledger.Identity {
	ids := []ledger.Identity{target}
	if res != nil && res.Created != nil && res.Created.Identity != target {
		ids = append(ids, res.Created.Identity)
	}
	return ids
}

func sameAccount(a, b *ledger.Account) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	x, err1 := a.MarshalBinary()
	y, err2 := b.MarshalBinary()
	return err1 == nil && err2 == nil && bytes.Equal(x, y)
}

// resync copies the ledger's records for ids into the mirror. Callers hold
// the locks of ids.
func (s *pointsService) resync(ids ...ledger.Identity) error {
	var accounts []*ledger.Account
	for _, id := range ids {
		acct, err := s.ledgerStore.Get(id)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		accounts = append(accounts, acct)
	}
	if len(accounts) == 0 {
		return nil
	}
	return s.mirrorStore.Update(ids, func(tx ledger.Txn) error {
		for _, acct := range accounts {
			if err := tx.Put(acct); err != nil {
				return err
			}
		}
		return nil
	})
}

// lookup reads an account from the mirror, falling back to (and repairing
// from) the ledger when the mirror has not seen it.
func (s *pointsService) lookup(id ledger.Identity) (*ledger.Account, error) {
	acct, err := s.mirrorStore.Get(id)
	if !errors.Is(err, ledger.ErrNotFound) {
		return acct, err
	}
	unlock := s.locks.lock(id)
	defer unlock()

	acct, err = s.ledgerStore.Get(id)
	if err != nil {
		return nil, err
	}
	mirrorDivergences.Add(1)
	if err := s.resync(id); err != nil {
		s.logger.Log("mirror", fmt.Sprintf("resync of %s failed: %v", id, err))
	}
	return acct, nil
}

// accountLister is implemented by stores that can enumerate their records.
type accountLister interface {
	ForEach(fn func(acct *ledger.Account) error) error
}

// warm copies every ledger record into the mirror. It runs at startup,
// before any instruction is served, so the mirror's account numbering
// continues where the ledger's left off.
func (s *pointsService) warm() (int, error) {
	lister, ok := s.ledgerStore.(accountLister)
	if !ok {
		return 0, nil
	}
	n := 0
	err := lister.ForEach(func(acct *ledger.Account) error {
		n++
		return s.mirrorStore.Update([]ledger.Identity{acct.Identity}, func(tx ledger.Txn) error {
			return tx.Put(acct)
		})
	})
	return n, err
}
