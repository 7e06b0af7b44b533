// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/moov-io/points/pkg/ledger"
)

type registerRequest struct {
	UserID string `json:"user_id"`
}

type referralRequest struct {
	ReferrerID string `json:"referrer_id"`
	NewUserID  string `json:"new_user_id"`
}

func addSignupRoutes(router *mux.Router, logger log.Logger, svc *pointsService) {
	router.Methods("POST").Path("/api/register").HandlerFunc(registerRoute(logger, svc))
	router.Methods("POST").Path("/api/refer").HandlerFunc(referralRoute(logger, svc))
}

func registerRoute(logger log.Logger, svc *pointsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := readJSON(r, &req); err != nil {
			encodeError(w, err)
			return
		}
		id, err := identityFor(req.UserID)
		if err != nil {
			encodeLedgerError(w, logger, err, "register")
			return
		}

		res, err := svc.submit(ledger.Caller{Signer: id}, id, ledger.Initialize{})
		if err != nil {
			encodeLedgerError(w, logger, err, "register")
			return
		}

		number := formatUserNumber(res.Account.Number)
		writeResponse(w, logger, http.StatusOK, response{
			Success:    true,
			Message:    fmt.Sprintf("User registered successfully. Your user number is %s.", number),
			Points:     points(res.Account.Points),
			UserNumber: number,
		})
	}
}

// referralRoute registers new_user_id as referred by referrer_id and pays
// the referrer.
func referralRoute(logger log.Logger, svc *pointsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req referralRequest
		if err := readJSON(r, &req); err != nil {
			encodeError(w, err)
			return
		}
		referrer, err := identityFor(req.ReferrerID)
		if err != nil {
			encodeLedgerError(w, logger, err, "refer")
			return
		}
		referred, err := identityFor(req.NewUserID)
		if err != nil {
			encodeLedgerError(w, logger, err, "refer")
			return
		}

		res, err := svc.submit(ledger.Caller{Signer: referrer}, referrer, ledger.Referral{Referred: referred})
		if err != nil {
			encodeLedgerError(w, logger, err, "refer")
			return
		}

		writeResponse(w, logger, http.StatusOK, response{
			Success:    true,
			Message:    fmt.Sprintf("Referral successful. Awarded %d points. New user number is %s.", res.Awarded, formatUserNumber(res.Created.Number)),
			Points:     points(res.Account.Points),
			UserNumber: formatUserNumber(res.Account.Number),
		})
	}
}
