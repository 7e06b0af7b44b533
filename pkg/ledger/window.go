// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package ledger

// Window is the number of seconds after which check-in eligibility and the
// ad view counter re-arm.
const Window uint64 = 86400

// Elapsed reports whether a full Window has passed between last and now.
func Elapsed(last, now uint64) bool {
	return WindowElapsed(last, now, Window)
}

// WindowElapsed reports whether now-last >= window. A now earlier than last
// never counts as elapsed.
func WindowElapsed(last, now, window uint64) bool {
	if now < last {
		return false
	}
	return now-last >= window
}
