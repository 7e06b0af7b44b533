// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/moov-io/points/pkg/ledger"
)

type activityRequest struct {
	UserID string `json:"user_id"`
}

type communityActivityRequest struct {
	UserID string `json:"user_id"`
	Points uint64 `json:"points"`
}

func addActivityRoutes(router *mux.Router, logger log.Logger, svc *pointsService, oauth *oauth) {
	router.Methods("POST").Path("/api/check-in").HandlerFunc(checkInRoute(logger, svc))
	router.Methods("POST").Path("/api/view-ad").HandlerFunc(adViewRoute(logger, svc))
	router.Methods("POST").Path("/api/community-activity").HandlerFunc(communityActivityRoute(logger, svc, oauth))
}

// selfInstruction reads a user_id body and applies the instruction built by
// mk on that user's own account.
func selfInstruction(w http.ResponseWriter, r *http.Request, logger log.Logger, svc *pointsService, component string, mk func(now uint64) ledger.Instruction) (*ledger.Result, bool) {
	var req activityRequest
	if err := readJSON(r, &req); err != nil {
		encodeError(w, err)
		return nil, false
	}
	id, err := identityFor(req.UserID)
	if err != nil {
		encodeLedgerError(w, logger, err, component)
		return nil, false
	}
	res, err := svc.submit(ledger.Caller{Signer: id}, id, mk(svc.timestamp()))
	if err != nil {
		encodeLedgerError(w, logger, err, component)
		return nil, false
	}
	return res, true
}

func checkInRoute(logger log.Logger, svc *pointsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, ok := selfInstruction(w, r, logger, svc, "check-in", func(now uint64) ledger.Instruction {
			return ledger.CheckIn{Timestamp: now}
		})
		if !ok {
			return
		}
		writeResponse(w, logger, http.StatusOK, response{
			Success: true,
			Message: fmt.Sprintf("Daily check-in successful. Awarded %d points.", res.Awarded),
			Points:  points(res.Account.Points),
		})
	}
}

func adViewRoute(logger log.Logger, svc *pointsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, ok := selfInstruction(w, r, logger, svc, "view-ad", func(now uint64) ledger.Instruction {
			return ledger.AdView{Timestamp: now}
		})
		if !ok {
			return
		}
		remaining := ledger.MaxAdViews - res.Account.AdViewsToday
		writeResponse(w, logger, http.StatusOK, response{
			Success: true,
			Message: fmt.Sprintf("Ad view recorded. Awarded %d points. %d ad views remaining today.", res.Awarded, remaining),
			Points:  points(res.Account.Points),
		})
	}
}

// communityActivityRoute lets an admin grant points. The admin credential is
// the client id behind the request's bearer token.
func communityActivityRoute(logger log.Logger, svc *pointsService, oauth *oauth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin, err := oauth.clientID(r)
		if err != nil {
			authFailures.With("method", "community").Add(1)
			writeResponse(w, logger, http.StatusUnauthorized, response{
				Success: false,
				Message: "Unauthorized admin credential.",
			})
			return
		}

		var req communityActivityRequest
		if err := readJSON(r, &req); err != nil {
			encodeError(w, err)
			return
		}
		id, err := identityFor(req.UserID)
		if err != nil {
			encodeLedgerError(w, logger, err, "community")
			return
		}

		res, err := svc.submit(ledger.Caller{Admin: admin}, id, ledger.CommunityCredit{Amount: req.Points})
		if err != nil {
			if errors.Is(err, ledger.ErrUnauthorized) {
				authFailures.With("method", "community").Add(1)
			}
			encodeLedgerError(w, logger, err, "community")
			return
		}
		authSuccesses.With("method", "community").Add(1)
		logger.Log("community", fmt.Sprintf("admin=%s credited %d points to %s", admin, res.Awarded, id))

		writeResponse(w, logger, http.StatusOK, response{
			Success: true,
			Message: fmt.Sprintf("Community activity recorded. Awarded %d points.", res.Awarded),
			Points:  points(res.Account.Points),
		})
	}
}
