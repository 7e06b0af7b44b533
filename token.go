// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

const (
	tokenName     = "$LE Token"
	tokenSymbol   = "LE"
	tokenDecimals = 9

	// 1 billion tokens in base units
	tokenTotalSupply uint64 = 1_000_000_000 * 1_000_000_000
)

// tokenInfo describes the on-chain token points are tracked against.
type tokenInfo struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        uint8  `json:"decimals"`
	TotalSupply     uint64 `json:"total_supply"`
	ContractAddress string `json:"contract_address"`
	ExplorerURL     string `json:"explorer_url"`
}

func newTokenInfo(cfg *config) tokenInfo {
	explorer := "https://explorer.solana.com/address/%s?cluster=devnet"
	if cfg.Network == "mainnet" {
		explorer = "https://explorer.solana.com/address/%s"
	}
	return tokenInfo{
		Name:            tokenName,
		Symbol:          tokenSymbol,
		Decimals:        tokenDecimals,
		TotalSupply:     tokenTotalSupply,
		ContractAddress: cfg.ProgramID,
		ExplorerURL:     fmt.Sprintf(explorer, cfg.ProgramID),
	}
}

func addTokenRoutes(router *mux.Router, logger log.Logger, token tokenInfo) {
	router.Methods("GET").Path("/api/token-info").HandlerFunc(tokenInfoRoute(logger, token))
	router.Methods("POST").Path("/api/exchange").HandlerFunc(exchangeRoute(logger))
}

func tokenInfoRoute(logger log.Logger, token tokenInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		err := json.NewEncoder(w).Encode(map[string]interface{}{
			"success":    true,
			"message":    "Token info retrieved successfully.",
			"token_info": token,
		})
		if err != nil {
			logger.Log("token-info", err)
		}
	}
}

// exchangeRoute always refuses. Points are not convertible into tokens.
func exchangeRoute(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, logger, http.StatusForbidden, response{
			Success: false,
			Message: "Exchanging points for tokens is disabled.",
		})
	}
}
