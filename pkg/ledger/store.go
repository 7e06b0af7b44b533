// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

// Store owns the account records of one execution context.
//
// Implementations must make every Update atomic: records staged through the
// Txn become visible together when fn returns nil, and nothing is written
// when it returns an error. Account numbers are assigned by Create inside the
// same exclusive scope that checks for an existing record, and a number is
// only consumed when its record is committed.
type Store interface {
	// Get returns a copy of the account or ErrNotFound.
	Get(id Identity) (*Account, error)

	// Create registers id with zero state and the next account number.
	// It returns ErrAlreadyExists if id is present.
	Create(id Identity) (*Account, error)

	// Update runs fn holding exclusive access to every identity in ids.
	Update(ids []Identity, fn func(tx Txn) error) error
}

// Txn is the view of a Store inside Update. Only identities passed to
// Update may be used.
type Txn interface {
	Get(id Identity) (*Account, error)

	// Create stages a new zero-state account for id. The returned account
	// carries its number once the transaction commits.
	Create(id Identity) (*Account, error)

	// Put stages acct as the full record for acct.Identity, creating it
	// if needed. Account numbers issued later stay above acct.Number.
	// A zero Number keeps the stored account's number, or gives a new
	// account the next one.
	Put(acct *Account) error
}

// uniqueIdentities drops duplicates from ids keeping the first occurrence.
func uniqueIdentities(ids []Identity) []Identity {
	out := make([]Identity, 0, len(ids))
	for i := range ids {
		dup := false
		for j := range out {
			if out[j] == ids[i] {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, ids[i])
		}
	}
	return out
}

// ContainsIdentity reports whether id is in ids. Stores use it to reject
// Txn access to identities that are not locked.
func ContainsIdentity(ids []Identity, id Identity) bool {
	for i := range ids {
		if ids[i] == id {
			return true
		}
	}
	return false
}
