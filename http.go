// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/moov-io/points/pkg/ledger"
)

const (
	// maxReadBytes is the number of bytes to read
	// from a request body. It's intended to be used
	// with an io.LimitReader
	maxReadBytes = 1 * 1024 * 1024
)

// response is the JSON envelope every /api route answers with.
type response struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Points     *uint64 `json:"points,omitempty"`
	UserNumber string  `json:"user_number,omitempty"`
	Card       string  `json:"card,omitempty"`
}

func points(n uint64) *uint64 {
	return &n
}

func newRouter(logger log.Logger, svc *pointsService, oauth *oauth, token tokenInfo) *mux.Router {
	router := mux.NewRouter()
	addSignupRoutes(router, logger, svc)
	addActivityRoutes(router, logger, svc, oauth)
	addAccountRoutes(router, logger, svc)
	addTokenRoutes(router, logger, token)
	addOauthRoutes(router, oauth)
	return router
}

// read consumes an io.Reader (wrapping with io.LimitReader)
// and returns either the resulting bytes or a non-nil error.
func read(r io.Reader) ([]byte, error) {
	r = io.LimitReader(r, maxReadBytes)
	return ioutil.ReadAll(r)
}

// readJSON decodes the request body into v.
func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	bs, err := read(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(bs, v)
}

func writeResponse(w http.ResponseWriter, logger log.Logger, status int, resp response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Log("http", err)
	}
}

// encodeError JSON encodes the supplied error
//
// The HTTP status of "400 Bad Request" is written to the
// response.
func encodeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
	})
}

// encodeLedgerError maps ledger failures onto HTTP statuses. Anything the
// ledger did not produce is treated as an internal error.
func encodeLedgerError(w http.ResponseWriter, logger log.Logger, err error, component string) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, errInvalidUserID):
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrUnauthorized):
		status = http.StatusUnauthorized
	case ledger.Reason(err) == "internal":
		internalError(w, err, logger, component)
		return
	}
	writeResponse(w, logger, status, response{
		Success: false,
		Message: err.Error(),
	})
}

func internalError(w http.ResponseWriter, err error, logger log.Logger, component string) {
	internalServerErrors.Add(1)
	logger.Log(component, err)
	w.WriteHeader(http.StatusInternalServerError)
}
