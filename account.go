// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/moov-io/points/pkg/ledger"
)

// formatUserNumber renders an account number the way users see it, e.g. #00042.
func formatUserNumber(n uint32) string {
	return fmt.Sprintf("#%05d", n)
}

// cardPayload is the text encoded into a member card QR code. Rendering the
// code is left to clients.
func cardPayload(acct *ledger.Account) string {
	return fmt.Sprintf("user_number=%s&points=%d", formatUserNumber(acct.Number), acct.Points)
}

func addAccountRoutes(router *mux.Router, logger log.Logger, svc *pointsService) {
	router.Methods("GET").Path("/api/points/{user_id}").HandlerFunc(pointsRoute(logger, svc))
	router.Methods("GET").Path("/api/card/{user_id}").HandlerFunc(cardRoute(logger, svc))
}

func lookupRoute(svc *pointsService, r *http.Request) (*ledger.Account, error) {
	id, err := identityFor(mux.Vars(r)["user_id"])
	if err != nil {
		return nil, err
	}
	return svc.lookup(id)
}

func pointsRoute(logger log.Logger, svc *pointsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := lookupRoute(svc, r)
		if err != nil {
			encodeLedgerError(w, logger, err, "points")
			return
		}
		writeResponse(w, logger, http.StatusOK, response{
			Success:    true,
			Message:    "User points retrieved successfully.",
			Points:     points(acct.Points),
			UserNumber: formatUserNumber(acct.Number),
		})
	}
}

func cardRoute(logger log.Logger, svc *pointsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := lookupRoute(svc, r)
		if err != nil {
			encodeLedgerError(w, logger, err, "card")
			return
		}
		writeResponse(w, logger, http.StatusOK, response{
			Success:    true,
			Message:    "Card generated successfully.",
			Points:     points(acct.Points),
			UserNumber: formatUserNumber(acct.Number),
			Card:       cardPayload(acct),
		})
	}
}

type accountSnapshot struct {
	Identity     string   `json:"identity"`
	UserNumber   string   `json:"user_number"`
	Points       uint64   `json:"points"`
	LastCheckIn  uint64   `json:"last_check_in"`
	AdViewsToday uint8    `json:"ad_views_today"`
	Referrals    []string `json:"referrals"`
}

func snapshot(acct *ledger.Account) *accountSnapshot {
	if acct == nil {
		return nil
	}
	out := &accountSnapshot{
		Identity:     acct.Identity.String(),
		UserNumber:   formatUserNumber(acct.Number),
		Points:       acct.Points,
		LastCheckIn:  acct.LastCheckIn,
		AdViewsToday: acct.AdViewsToday,
		Referrals:    make([]string, 0, len(acct.Referrals)),
	}
	for i := range acct.Referrals {
		out.Referrals = append(out.Referrals, acct.Referrals[i].String())
	}
	return out
}

// inspectAccountRoute is served on the admin servlet. It shows an account as
// both the ledger and the mirror hold it.
func inspectAccountRoute(logger log.Logger, svc *pointsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ledger.ParseIdentity(mux.Vars(r)["identity"])
		if err != nil {
			encodeError(w, err)
			return
		}
		fromLedger, err := svc.ledgerStore.Get(id)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			internalError(w, err, logger, "inspect")
			return
		}
		fromMirror, err := svc.mirrorStore.Get(id)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			internalError(w, err, logger, "inspect")
			return
		}
		if fromLedger == nil && fromMirror == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		err = json.NewEncoder(w).Encode(map[string]interface{}{
			"ledger":  snapshot(fromLedger),
			"mirror":  snapshot(fromMirror),
			"in_sync": sameAccount(fromLedger, fromMirror),
		})
		if err != nil {
			logger.Log("inspect", err)
		}
	}
}
