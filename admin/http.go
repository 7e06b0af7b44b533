// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer returns an admin servlet bound to addr (e.g. ":9090").
func NewServer(addr string) *Server {
	timeout, _ := time.ParseDuration("45s")
	router := handler()
	return &Server{
		router: router,
		svc: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			IdleTimeout:  timeout,
		},
	}
}

// Server represents a holder around a net/http Server which
// is used for admin endpoints. (i.e. metrics, healthcheck)
type Server struct {
	router *mux.Router
	svc    *http.Server
}

func (s *Server) BindAddress() string {
	return s.svc.Addr
}

// Handler exposes the admin routes, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddHandler registers an extra GET route on the admin servlet. Paths
// follow gorilla/mux syntax so they may carry variables.
func (s *Server) AddHandler(path string, h http.HandlerFunc) {
	s.router.Methods("GET").Path(path).HandlerFunc(h)
}

// Listen brings up the admin HTTP service. This call blocks.
func (s *Server) Listen() error {
	if s == nil || s.svc == nil {
		return nil
	}
	return s.svc.ListenAndServe()
}

// Shutdown unbinds the HTTP server.
func (s *Server) Shutdown() {
	if s == nil || s.svc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.svc.Shutdown(ctx)
}

func handler() *mux.Router {
	r := mux.NewRouter()

	// prometheus metrics
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	// liveness
	r.Methods("GET").Path("/live").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// pprof, index plus every served profile
	r.HandleFunc("/debug/pprof/", pprof.Index)
	for _, p := range profiles {
		if p.served() {
			r.Handle("/debug/pprof/"+p.name, p.route())
		}
	}

	return r
}
