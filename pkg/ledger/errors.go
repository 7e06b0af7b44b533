// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

import "errors"

var (
	ErrDecode             = errors.New("ledger: invalid instruction data")
	ErrUnauthorized       = errors.New("ledger: unauthorized")
	ErrNotFound           = errors.New("ledger: account not found")
	ErrAlreadyExists      = errors.New("ledger: account already exists")
	ErrAlreadyCheckedIn   = errors.New("ledger: already checked in")
	ErrAdLimitReached     = errors.New("ledger: daily ad view limit reached")
	ErrAlreadyReferred    = errors.New("ledger: already referred")
	ErrArithmeticOverflow = errors.New("ledger: arithmetic overflow")
	ErrInvalidArgument    = errors.New("ledger: invalid argument")
)

// Reason returns a short label for err suitable for metrics. Errors not
// produced by this package are reported as "internal".
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "already_checked_in"
	case errors.Is(err, ErrAdLimitReached):
		return "ad_limit_reached"
	case errors.Is(err, ErrAlreadyReferred):
		return "already_referred"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	}
	return "internal"
}
