// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestAdmin__pprofProfileEnabled(t *testing.T) {
	cases := []struct {
		env      string
		zero     bool
		expected bool
	}{
		{"", true, true},
		{"", false, false},
		{"yes", false, true},
		{"YES", false, true},
		{"true", false, true},
		{"no", true, false},
		{"false", true, false},
		{"maybe", true, true},
	}
	for i := range cases {
		os.Setenv("PPROF_TESTPROFILE", cases[i].env)
		if v := pprofProfileEnabled("testprofile", cases[i].zero); v != cases[i].expected {
			t.Errorf("case #%d: got %v", i, v)
		}
	}
	os.Unsetenv("PPROF_TESTPROFILE")
}

func TestAdmin__routes(t *testing.T) {
	svc := NewServer(":0")
	svc.AddHandler("/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	cases := []struct {
		path   string
		status int
	}{
		{"/live", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/hello/moov", http.StatusTeapot},
		{"/debug/pprof/cmdline", http.StatusOK},
		{"/debug/pprof/heap", http.StatusOK},
		{"/debug/pprof/trace", http.StatusNotFound},
		{"/missing", http.StatusNotFound},
	}
	for i := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", cases[i].path, nil)
		svc.Handler().ServeHTTP(w, req)
		if w.Code != cases[i].status {
			t.Errorf("%s: got %d", cases[i].path, w.Code)
		}
	}

	if v := svc.BindAddress(); v != ":0" {
		t.Errorf("got %s", v)
	}
}

func TestAdmin__init(t *testing.T) {
	os.Setenv("PPROF_BLOCK_RATE", "abc")
	if err := Init(); err == nil {
		t.Error("expected error")
	}
	os.Setenv("PPROF_BLOCK_RATE", "0")
	os.Setenv("PPROF_MUTEX_FRACTION", "0")
	defer func() {
		os.Unsetenv("PPROF_BLOCK_RATE")
		os.Unsetenv("PPROF_MUTEX_FRACTION")
	}()
	if err := Init(); err != nil {
		t.Error(err)
	}
}
