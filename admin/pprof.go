// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// profile is one pprof endpoint of the admin servlet.
//
// Profiles are only exposed on the admin servlet because dumps can contain
// account identities or alter the app performance. Each can be toggled
// with PPROF_$NAME.
type profile struct {
	name    string
	enabled bool

	// handler serves the profile, nil means the runtime profile of the same name
	handler http.HandlerFunc

	// sample turns on the runtime sampling the profile needs
	sample func() error
}

var profiles = []profile{
	{name: "allocs", enabled: true},
	{name: "block", enabled: true, sample: sampleBlocks},
	{name: "cmdline", enabled: true, handler: pprof.Cmdline},
	{name: "goroutine", enabled: true},
	{name: "heap", enabled: true},
	{name: "mutex", enabled: true, sample: sampleMutexes},
	{name: "profile", enabled: true, handler: pprof.Profile},
	{name: "threadcreate", enabled: false},
	{name: "trace", enabled: false, handler: pprof.Trace},
}

func (p profile) served() bool {
	return pprofProfileEnabled(p.name, p.enabled)
}

func (p profile) route() http.Handler {
	if p.handler != nil {
		return p.handler
	}
	return pprof.Handler(p.name)
}

// pprofProfileEnabled reads PPROF_$name (uppercased). "yes" or "true"
// enable the profile, "no" or "false" disable it, anything else falls
// back to zero.
func pprofProfileEnabled(name string, zero bool) bool {
	v := os.Getenv(fmt.Sprintf("PPROF_%s", strings.ToUpper(name)))
	switch strings.ToLower(v) {
	case "yes", "true":
		return true
	case "no", "false":
		return false
	}
	return zero
}

func sampleBlocks() error {
	rate, err := envInt("PPROF_BLOCK_RATE", 1)
	if err != nil {
		return err
	}
	runtime.SetBlockProfileRate(rate)
	return nil
}

func sampleMutexes() error {
	fraction, err := envInt("PPROF_MUTEX_FRACTION", 1)
	if err != nil {
		return err
	}
	runtime.SetMutexProfileFraction(fraction)
	return nil
}

func envInt(name string, zero int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return zero, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s=%q", name, v)
	}
	return n, nil
}
