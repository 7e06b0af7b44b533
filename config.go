// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/joho/godotenv"

	"github.com/moov-io/points/pkg/ledger"
)

// config is resolved once at startup. Values come from the environment,
// optionally seeded from a .env file in the working directory.
type config struct {
	// LedgerPath is the sqlite file backing the authoritative ledger.
	LedgerPath string

	// MirrorPath is the BuntDB file backing the mirrored cache.
	MirrorPath string

	// AdminClients may request admin tokens. Their IDs form the admin
	// credential set allowed to grant community credit.
	AdminClients []adminClient

	// AdminTokenTTL is how long an issued admin token stays valid.
	AdminTokenTTL time.Duration

	ProgramID string
	Network   string
}

type adminClient struct {
	ID     string
	Secret string
}

func (c *config) adminSet() ledger.AdminSet {
	ids := make([]string, 0, len(c.AdminClients))
	for i := range c.AdminClients {
		ids = append(ids, c.AdminClients[i].ID)
	}
	return ledger.NewAdminSet(ids...)
}

func loadConfig(logger log.Logger, envFile string) (*config, error) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("problem loading %s: %v", envFile, err)
		}
		logger.Log("config", fmt.Sprintf("loaded %s", envFile))
	}

	clients, err := parseAdminClients(os.Getenv("ADMIN_CLIENTS"))
	if err != nil {
		return nil, err
	}
	ttl := time.Hour
	if v := os.Getenv("ADMIN_TOKEN_TTL"); v != "" {
		ttl, err = time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid ADMIN_TOKEN_TTL=%q", v)
		}
	}

	cfg := &config{
		LedgerPath:    os.Getenv("LEDGER_DB_PATH"),
		MirrorPath:    os.Getenv("MIRROR_DB_PATH"),
		AdminClients:  clients,
		AdminTokenTTL: ttl,
		ProgramID:     os.Getenv("PROGRAM_ID"),
		Network:       os.Getenv("SOLANA_NETWORK"),
	}
	if cfg.adminSet().Len() == 0 {
		logger.Log("config", "no ADMIN_CLIENTS configured, community credit is disabled")
	}
	if cfg.MirrorPath == "" {
		cfg.MirrorPath = ":memory:"
	}
	if cfg.ProgramID == "" {
		cfg.ProgramID = "undeployed"
	}
	if cfg.Network == "" {
		cfg.Network = "devnet"
	}
	return cfg, nil
}

// parseAdminClients reads "id:secret" pairs separated by commas.
func parseAdminClients(v string) ([]adminClient, error) {
	var out []adminClient
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid admin client %q, expected id:secret", pair)
		}
		id := strings.TrimSpace(parts[0])
		for i := range out {
			if out[i].ID == id {
				return nil, fmt.Errorf("duplicate admin client %q", id)
			}
		}
		out = append(out, adminClient{ID: id, Secret: parts[1]})
	}
	return out, nil
}
