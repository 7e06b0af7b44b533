// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package ledgertest holds the behaviour every ledger.Store implementation
// must share.
package ledgertest

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/moov-io/points/pkg/ledger"
)

// Identity returns a deterministic non-zero identity for tests.
func Identity(n int) ledger.Identity {
	var id ledger.Identity
	copy(id[:], fmt.Sprintf("identity-%08d", n))
	id[31] = 0xff
	return id
}

var errAbort = errors.New("abort")

// RunStoreTests runs the shared Store suite. newStore must return an empty
// store for every call.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(Identity(1))
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("create assigns sequential numbers", func(t *testing.T) {
		requireT := require.New(t)
		s := newStore(t)

		for i := 1; i <= 3; i++ {
			acct, err := s.Create(Identity(i))
			requireT.NoError(err)
			requireT.Equal(uint32(i), acct.Number)
			requireT.Equal(Identity(i), acct.Identity)
			requireT.Zero(acct.Points)
		}

		_, err := s.Create(Identity(2))
		requireT.ErrorIs(err, ledger.ErrAlreadyExists)

		acct, err := s.Create(Identity(4))
		requireT.NoError(err)
		requireT.Equal(uint32(4), acct.Number)
	})

	t.Run("update round trips records", func(t *testing.T) {
		requireT := require.New(t)
		s := newStore(t)

		_, err := s.Create(Identity(1))
		requireT.NoError(err)

		want := &ledger.Account{
			Identity:     Identity(1),
			Points:       ^uint64(0),
			LastCheckIn:  1_700_000_000,
			AdViewsToday: 5,
			Referrals:    []ledger.Identity{Identity(7), Identity(3)},
			Number:       1,
		}
		err = s.Update([]ledger.Identity{Identity(1)}, func(tx ledger.Txn) error {
			return tx.Put(want)
		})
		requireT.NoError(err)

		got, err := s.Get(Identity(1))
		requireT.NoError(err)
		requireT.Equal(want, got)
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		requireT := require.New(t)
		s := newStore(t)

		_, err := s.Create(Identity(1))
		requireT.NoError(err)

		err = s.Update([]ledger.Identity{Identity(1), Identity(2)}, func(tx ledger.Txn) error {
			acct, err := tx.Get(Identity(1))
			if err != nil {
				return err
			}
			acct.Points = 100
			if err := tx.Put(acct); err != nil {
				return err
			}
			if _, err := tx.Create(Identity(2)); err != nil {
				return err
			}
			return errAbort
		})
		requireT.ErrorIs(err, errAbort)

		acct, err := s.Get(Identity(1))
		requireT.NoError(err)
		requireT.Zero(acct.Points)

		_, err = s.Get(Identity(2))
		requireT.ErrorIs(err, ledger.ErrNotFound)

		// the aborted creation must not have consumed a number
		acct, err = s.Create(Identity(3))
		requireT.NoError(err)
		requireT.Equal(uint32(2), acct.Number)
	})

	t.Run("txn create numbers on commit", func(t *testing.T) {
		requireT := require.New(t)
		s := newStore(t)

		_, err := s.Create(Identity(1))
		requireT.NoError(err)

		var created *ledger.Account
		err = s.Update([]ledger.Identity{Identity(2)}, func(tx ledger.Txn) error {
			if _, err := tx.Create(Identity(2)); err != nil {
				return err
			}
			_, err := tx.Create(Identity(2))
			requireT.ErrorIs(err, ledger.ErrAlreadyExists)

			created, err = tx.Get(Identity(2))
			return err
		})
		requireT.NoError(err)
		requireT.NotNil(created)

		acct, err := s.Get(Identity(2))
		requireT.NoError(err)
		requireT.Equal(uint32(2), acct.Number)
	})

	t.Run("put keeps counter ahead", func(t *testing.T) {
		requireT := require.New(t)
		s := newStore(t)

		err := s.Update([]ledger.Identity{Identity(9)}, func(tx ledger.Txn) error {
			return tx.Put(&ledger.Account{Identity: Identity(9), Number: 10})
		})
		requireT.NoError(err)

		acct, err := s.Create(Identity(1))
		requireT.NoError(err)
		requireT.Equal(uint32(11), acct.Number)
	})

	t.Run("concurrent create of one identity", func(t *testing.T) {
		requireT := require.New(t)
		s := newStore(t)

		const workers = 16
		var (
			mu      sync.Mutex
			winners int
		)
		var group errgroup.Group
		for i := 0; i < workers; i++ {
			group.Go(func() error {
				_, err := s.Create(Identity(1))
				switch {
				case err == nil:
					mu.Lock()
					winners++
					mu.Unlock()
					return nil
				case errors.Is(err, ledger.ErrAlreadyExists):
					return nil
				}
				return err
			})
		}
		requireT.NoError(group.Wait())
		requireT.Equal(1, winners)

		acct, err := s.Create(Identity(2))
		requireT.NoError(err)
		requireT.Equal(uint32(2), acct.Number)
	})

	t.Run("concurrent creates get unique numbers", func(t *testing.T) {
		requireT := require.New(t)
		s := newStore(t)

		const accounts = 32
		numbers := make([]int, accounts)
		var group errgroup.Group
		for i := 0; i < accounts; i++ {
			i := i
			group.Go(func() error {
				acct, err := s.Create(Identity(i + 1))
				if err != nil {
					return err
				}
				numbers[i] = int(acct.Number)
				return nil
			})
		}
		requireT.NoError(group.Wait())

		sort.Ints(numbers)
		for i := range numbers {
			requireT.Equal(i+1, numbers[i])
		}
	})

	t.Run("put without a number", func(t *testing.T) {
		requireT := require.New(t)
		s := newStore(t)

		_, err := s.Create(Identity(1))
		requireT.NoError(err)

		err = s.Update([]ledger.Identity{Identity(1), Identity(5)}, func(tx ledger.Txn) error {
			if err := tx.Put(&ledger.Account{Identity: Identity(1), Points: 9}); err != nil {
				return err
			}
			return tx.Put(&ledger.Account{Identity: Identity(5), Points: 3})
		})
		requireT.NoError(err)

		acct, err := s.Get(Identity(1))
		requireT.NoError(err)
		requireT.Equal(uint32(1), acct.Number)
		requireT.Equal(uint64(9), acct.Points)

		acct, err = s.Get(Identity(5))
		requireT.NoError(err)
		requireT.Equal(uint32(2), acct.Number)
		requireT.Equal(uint64(3), acct.Points)

		acct, err = s.Create(Identity(6))
		requireT.NoError(err)
		requireT.Equal(uint32(3), acct.Number)
	})

	t.Run("referral races registration", func(t *testing.T) {
		referrer, referred := Identity(1), Identity(2)

		for round := 0; round < 20; round++ {
			requireT := require.New(t)
			s := newStore(t)
			engine := ledger.NewEngine(s, nil)

			_, err := engine.Execute(ledger.Caller{Signer: referrer}, referrer, ledger.Initialize{})
			requireT.NoError(err)

			var (
				start     = make(chan struct{})
				group     errgroup.Group
				referErr  error
				signupErr error
			)
			group.Go(func() error {
				<-start
				_, referErr = engine.Execute(ledger.Caller{Signer: referrer}, referrer, ledger.Referral{Referred: referred})
				return nil
			})
			group.Go(func() error {
				<-start
				_, signupErr = engine.Execute(ledger.Caller{Signer: referred}, referred, ledger.Initialize{})
				return nil
			})
			close(start)
			requireT.NoError(group.Wait())

			// exactly one side registers the account
			if referErr == nil {
				requireT.ErrorIs(signupErr, ledger.ErrAlreadyExists, "round %d", round)
			} else {
				requireT.ErrorIs(referErr, ledger.ErrAlreadyExists, "round %d", round)
				requireT.NoError(signupErr, "round %d", round)
			}

			acct, err := s.Get(referred)
			requireT.NoError(err)
			requireT.Equal(uint32(2), acct.Number, "round %d", round)

			acct, err = s.Get(referrer)
			requireT.NoError(err)
			if referErr == nil {
				requireT.Equal(ledger.FirstReferralReward, acct.Points)
				requireT.Equal([]ledger.Identity{referred}, acct.Referrals)
			} else {
				requireT.Zero(acct.Points)
				requireT.Empty(acct.Referrals)
			}

			// the loser consumed no number
			acct, err = s.Create(Identity(3))
			requireT.NoError(err)
			requireT.Equal(uint32(3), acct.Number, "round %d", round)
		}
	})
}
