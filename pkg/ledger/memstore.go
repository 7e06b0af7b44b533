// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const memoryShards = 64

type memoryShard struct {
	mu       sync.Mutex
	accounts map[Identity]*Account
}

// MemoryStore keeps accounts in memory behind per-shard locks so unrelated
// identities can be updated concurrently.
type MemoryStore struct {
	shards  [memoryShards]memoryShard
	counter atomic.Uint32
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].accounts = make(map[Identity]*Account)
	}
	return s
}

func shardIndex(id Identity) int {
	return int(xxhash.Sum64(id[:]) % memoryShards)
}

func (s *MemoryStore) Get(id Identity) (*Account, error) {
	sh := &s.shards[shardIndex(id)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acct, ok := sh.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acct.Clone(), nil
}

func (s *MemoryStore) Create(id Identity) (*Account, error) {
	var out *Account
	err := s.Update([]Identity{id}, func(tx Txn) error {
		acct, err := tx.Create(id)
		out = acct
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func (s *MemoryStore) Update(ids []Identity, fn func(tx Txn) error) error {
	ids = uniqueIdentities(ids)

	// lock shards in index order so overlapping updates cannot deadlock
	idx := make([]int, 0, len(ids))
	for i := range ids {
		n := shardIndex(ids[i])
		found := false
		for _, v := range idx {
			if v == n {
				found = true
				break
			}
		}
		if !found {
			idx = append(idx, n)
		}
	}
	sort.Ints(idx)
	for _, n := range idx {
		s.shards[n].mu.Lock()
	}
	defer func() {
		for i := len(idx) - 1; i >= 0; i-- {
			s.shards[idx[i]].mu.Unlock()
		}
	}()

	tx := &memoryTxn{
		store:  s,
		ids:    ids,
		staged: make(map[Identity]*Account),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// nextAccountNumber must be called with the shard of the new identity held.
func (s *MemoryStore) nextAccountNumber() uint32 {
	return s.counter.Add(1)
}

// raiseCounter keeps future numbers above n.
func (s *MemoryStore) raiseCounter(n uint32) {
	for {
		cur := s.counter.Load()
		if cur >= n || s.counter.CompareAndSwap(cur, n) {
			return
		}
	}
}

type memoryTxn struct {
	store   *MemoryStore
	ids     []Identity
	staged  map[Identity]*Account
	created []*Account
}

func (tx *memoryTxn) check(id Identity) error {
	if !ContainsIdentity(tx.ids, id) {
		return fmt.Errorf("memory store: identity %s not locked by this update", id)
	}
	return nil
}

func (tx *memoryTxn) lookup(id Identity) (*Account, bool) {
	if acct, ok := tx.staged[id]; ok {
		return acct, true
	}
	acct, ok := tx.store.shards[shardIndex(id)].accounts[id]
	return acct, ok
}

func (tx *memoryTxn) Get(id Identity) (*Account, error) {
	if err := tx.check(id); err != nil {
		return nil, err
	}
	acct, ok := tx.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return acct.Clone(), nil
}

func (tx *memoryTxn) Create(id Identity) (*Account, error) {
	if err := tx.check(id); err != nil {
		return nil, err
	}
	if _, ok := tx.lookup(id); ok {
		return nil, ErrAlreadyExists
	}
	acct := &Account{Identity: id}
	tx.staged[id] = acct
	tx.created = append(tx.created, acct)
	return acct, nil
}

func (tx *memoryTxn) Put(acct *Account) error {
	if err := tx.check(acct.Identity); err != nil {
		return err
	}
	staged := acct.Clone()
	if prev, ok := tx.staged[acct.Identity]; ok && prev.Number == 0 {
		// keep the pointer handed out by Create so it learns its number
		*prev = *staged
		return nil
	}
	if staged.Number == 0 {
		if cur, ok := tx.lookup(acct.Identity); ok {
			staged.Number = cur.Number
		} else {
			tx.created = append(tx.created, staged)
		}
	}
	tx.staged[acct.Identity] = staged
	return nil
}

func (tx *memoryTxn) commit() {
	s := tx.store
	for _, acct := range tx.created {
		if acct.Number == 0 {
			acct.Number = s.nextAccountNumber()
		}
	}
	for id, acct := range tx.staged {
		s.raiseCounter(acct.Number)
		s.shards[shardIndex(id)].accounts[id] = acct.Clone()
	}
}
