// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

// FirstReferralReward is paid for an account's first referral. Every
// following referral pays half of the previous one, rounded down.
const FirstReferralReward uint64 = 50

// ReferralReward returns the points paid for a referral given how many
// referrals the account already has.
func ReferralReward(count int) uint64 {
	if count <= 0 {
		return FirstReferralReward
	}
	if count >= 64 {
		return 0
	}
	return FirstReferralReward >> uint(count)
}
