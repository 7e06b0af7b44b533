// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moov-io/points/admin"
	"github.com/moov-io/points/pkg/buntdbstore"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

var (
	httpAddr  = flag.String("http.addr", ":8080", "HTTP listen address")
	adminAddr = flag.String("admin.addr", ":9090", "Admin HTTP listen address")
	envFile   = flag.String("env", ".env", "Optional file of environment variables to load")

	// Metrics
	authSuccesses = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_successes",
		Help: "Count of successful authorizations",
	}, []string{"method"})
	authFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_failures",
		Help: "Count of failed authorizations",
	}, []string{"method"})

	tokenGenerations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_token_generations",
		Help: "Count of auth tokens created",
	}, []string{"method"})

	instructionsApplied = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "points_instructions_applied",
		Help: "Count of instructions committed to the ledger",
	}, []string{"instruction"})
	instructionsRejected = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "points_instructions_rejected",
		Help: "Count of instructions the ledger rejected",
	}, []string{"instruction", "reason"})
	pointsAwarded = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "points_awarded",
		Help: "Sum of points credited by the ledger",
	}, []string{"instruction"})
	mirrorDivergences = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "points_mirror_divergences",
		Help: "Count of times the mirrored cache disagreed with the ledger",
	}, nil)

	internalServerErrors = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "points_internal_server_errors",
		Help: "Count of responses answered with 500 Internal Server Error",
	}, nil)
)

const Version = "0.1.0-dev"

func main() {
	flag.Parse()

	// Setup logging, default to stderr
	var logger log.Logger
	logger = log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	logger.Log("startup", fmt.Sprintf("Starting points server version %s", Version))

	if err := admin.Init(); err != nil {
		logger.Log("admin", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(logger, *envFile)
	if err != nil {
		logger.Log("config", err)
		os.Exit(1)
	}

	// Listen for application termination.
	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	ledgerStore, err := newSqliteAccountStore(logger, cfg.LedgerPath)
	if err != nil {
		logger.Log("sqlite", err)
		os.Exit(1)
	}
	defer ledgerStore.Close()

	mirrorStore, err := buntdbstore.New(cfg.MirrorPath)
	if err != nil {
		logger.Log("buntdb", err)
		os.Exit(1)
	}
	defer mirrorStore.Close()

	svc := newPointsService(logger, ledgerStore, mirrorStore, cfg.adminSet())
	n, err := svc.warm()
	if err != nil {
		logger.Log("mirror", fmt.Sprintf("problem warming mirror: %v", err))
		os.Exit(1)
	}
	cached, err := mirrorStore.Count()
	if err != nil {
		logger.Log("mirror", fmt.Sprintf("problem counting mirror: %v", err))
		os.Exit(1)
	}
	logger.Log("mirror", fmt.Sprintf("warmed mirror with %d of %d ledger accounts", cached, n))

	oauth, err := setupOauthServer(logger, cfg.AdminClients, cfg.AdminTokenTTL)
	if err != nil {
		logger.Log("oauth", err)
		os.Exit(1)
	}
	handler := newRouter(logger, svc, oauth, newTokenInfo(cfg))

	serve := &http.Server{
		Addr:    *httpAddr,
		Handler: handler,
		TLSConfig: &tls.Config{
			InsecureSkipVerify:       false,
			PreferServerCipherSuites: true,
			MinVersion:               tls.VersionTLS12,
		},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	shutdownServer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := serve.Shutdown(ctx); err != nil {
			logger.Log("shutdown", err)
		}
	}

	adminServer := admin.NewServer(*adminAddr)
	adminServer.AddHandler("/accounts/{identity}", inspectAccountRoute(logger, svc))
	go func() {
		logger.Log("admin", fmt.Sprintf("Starting admin service on %s", adminServer.BindAddress()))
		if err := adminServer.Listen(); err != nil && err != http.ErrServerClosed {
			logger.Log("admin", "shutting down", "error", err)
		}
	}()

	go func() {
		logger.Log("transport", "HTTP", "addr", *httpAddr)
		errs <- serve.ListenAndServe()
	}()

	if err := <-errs; err != nil {
		adminServer.Shutdown()
		shutdownServer()
		logger.Log("exit", err)
	}
}
