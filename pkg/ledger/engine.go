// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	// CheckInReward is paid for each daily check-in.
	CheckInReward uint64 = 10

	// AdViewReward is paid for each rewarded ad view.
	AdViewReward uint64 = 5
)

// Result describes a committed instruction.
type Result struct {
	Instruction Instruction

	// Account is the target account after the instruction. For Referral
	// this is the referrer.
	Account *Account

	// Created is the account registered by Initialize or Referral.
	Created *Account

	// Awarded is the number of points credited to Account.
	Awarded uint64
}

// Engine applies instructions to the accounts of one Store. It holds no
// state of its own, so engines over different stores fed the same
// instructions produce the same records.
type Engine struct {
	store Store
	guard *Guard
}

func NewEngine(store Store, guard *Guard) *Engine {
	return &Engine{
		store: store,
		guard: guard,
	}
}

// Apply decodes raw and executes it against target on behalf of caller.
func (e *Engine) Apply(caller Caller, target Identity, raw []byte) (*Result, error) {
	inst, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return e.Execute(caller, target, inst)
}

// Execute authorizes inst and commits its effect. On error no account is
// modified.
func (e *Engine) Execute(caller Caller, target Identity, inst Instruction) (*Result, error) {
	if inst == nil {
		return nil, fmt.Errorf("%w: nil instruction", ErrInvalidArgument)
	}
	if target.IsZero() {
		return nil, fmt.Errorf("%w: zero target identity", ErrInvalidArgument)
	}
	if err := e.guard.Authorize(inst, caller, target); err != nil {
		return nil, err
	}

	switch v := inst.(type) {
	case Initialize:
		return e.initialize(target)
	case AddPoints:
		return e.credit(inst, target, v.Amount)
	case CommunityCredit:
		return e.credit(inst, target, v.Amount)
	case CheckIn:
		return e.checkIn(inst, target, v.Timestamp)
	case AdView:
		return e.adView(inst, target, v.Timestamp)
	case Referral:
		return e.referral(inst, target, v.Referred)
	}
	return nil, fmt.Errorf("%w: unsupported instruction %s", ErrInvalidArgument, inst.Tag())
}

func (e *Engine) initialize(target Identity) (*Result, error) {
	acct, err := e.store.Create(target)
	if err != nil {
		return nil, err
	}
	return &Result{
		Instruction: Initialize{},
		Account:     acct,
		Created:     acct.Clone(),
	}, nil
}

// mutate runs fn on a copy of target's account and stores the copy only if
// fn succeeds.
func (e *Engine) mutate(target Identity, fn func(acct *Account) (uint64, error)) (*Account, uint64, error) {
	var (
		out     *Account
		awarded uint64
	)
	err := e.store.Update([]Identity{target}, func(tx Txn) error {
		acct, err := tx.Get(target)
		if err != nil {
			return err
		}
		if awarded, err = fn(acct); err != nil {
			return err
		}
		out = acct
		return tx.Put(acct)
	})
	if err != nil {
		return nil, 0, err
	}
	return out, awarded, nil
}

func (e *Engine) credit(inst Instruction, target Identity, amount uint64) (*Result, error) {
	acct, awarded, err := e.mutate(target, func(acct *Account) (uint64, error) {
		points, err := checkedAdd(acct.Points, amount)
		if err != nil {
			return 0, err
		}
		acct.Points = points
		return amount, nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Instruction: inst, Account: acct, Awarded: awarded}, nil
}

func (e *Engine) checkIn(inst Instruction, target Identity, now uint64) (*Result, error) {
	acct, awarded, err := e.mutate(target, func(acct *Account) (uint64, error) {
		if !Elapsed(acct.LastCheckIn, now) {
			return 0, ErrAlreadyCheckedIn
		}
		points, err := checkedAdd(acct.Points, CheckInReward)
		if err != nil {
			return 0, err
		}
		acct.Points = points
		acct.LastCheckIn = now
		return CheckInReward, nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Instruction: inst, Account: acct, Awarded: awarded}, nil
}

func (e *Engine) adView(inst Instruction, target Identity, now uint64) (*Result, error) {
	acct, awarded, err := e.mutate(target, func(acct *Account) (uint64, error) {
		views := acct.AdViewsToday
		if Elapsed(acct.LastCheckIn, now) {
			views = 0
		}
		if views >= MaxAdViews {
			return 0, ErrAdLimitReached
		}
		points, err := checkedAdd(acct.Points, AdViewReward)
		if err != nil {
			return 0, err
		}
		acct.Points = points
		acct.AdViewsToday = views + 1
		return AdViewReward, nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Instruction: inst, Account: acct, Awarded: awarded}, nil
}

func (e *Engine) referral(inst Instruction, referrer, referred Identity) (*Result, error) {
	if referred.IsZero() {
		return nil, fmt.Errorf("%w: zero referred identity", ErrInvalidArgument)
	}
	if referred == referrer {
		return nil, fmt.Errorf("%w: self referral", ErrInvalidArgument)
	}

	var (
		out, created *Account
		reward       uint64
	)
	err := e.store.Update([]Identity{referrer, referred}, func(tx Txn) error {
		acct, err := tx.Get(referrer)
		if err != nil {
			return err
		}
		if acct.HasReferred(referred) {
			return ErrAlreadyReferred
		}
		switch _, err := tx.Get(referred); {
		case err == nil:
			return ErrAlreadyExists
		case !errors.Is(err, ErrNotFound):
			return err
		}

		reward = ReferralReward(len(acct.Referrals))
		points, err := checkedAdd(acct.Points, reward)
		if err != nil {
			return err
		}

		if created, err = tx.Create(referred); err != nil {
			return err
		}
		acct.Points = points
		acct.Referrals = append(acct.Referrals, referred)
		out = acct
		return tx.Put(acct)
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Instruction: inst,
		Account:     out,
		Created:     created.Clone(),
		Awarded:     reward,
	}, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}
