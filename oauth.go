// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	oauth2errors "gopkg.in/oauth2.v3/errors"
	"gopkg.in/oauth2.v3/manage"
	"gopkg.in/oauth2.v3/models"
	"gopkg.in/oauth2.v3/server"
	"gopkg.in/oauth2.v3/store"
)

// adminScope is the only scope admin tokens are issued for.
const adminScope = "community"

// oauth issues client-credentials tokens to admin clients. Community credit
// requests present such a token and the ledger checks its client id against
// the admin credential set.
type oauth struct {
	server *server.Server
	logger log.Logger
}

func setupOauthServer(logger log.Logger, clients []adminClient, ttl time.Duration) (*oauth, error) {
	tokenStore, err := store.NewMemoryTokenStore()
	if err != nil {
		return nil, fmt.Errorf("problem creating token store: %v", err)
	}

	clientStore := store.NewClientStore()
	for i := range clients {
		err := clientStore.Set(clients[i].ID, &models.Client{
			ID:     clients[i].ID,
			Secret: clients[i].Secret,
			Domain: "http://localhost",
		})
		if err != nil {
			return nil, fmt.Errorf("problem adding admin client %s: %v", clients[i].ID, err)
		}
	}

	manager := manage.NewDefaultManager()
	manager.MapTokenStorage(tokenStore)
	manager.MapClientStorage(clientStore)
	if ttl > 0 {
		manager.SetClientTokenCfg(&manage.Config{AccessTokenExp: ttl})
	}

	srv := server.NewDefaultServer(manager)
	srv.SetAllowGetAccessRequest(true)
	srv.SetClientInfoHandler(server.ClientFormHandler)
	srv.SetClientScopeHandler(func(clientID, scope string) (bool, error) {
		return scope == "" || scope == adminScope, nil
	})
	srv.SetInternalErrorHandler(func(err error) (re *oauth2errors.Response) {
		logger.Log("oauth", "internal error", "error", err)
		return
	})
	srv.SetResponseErrorHandler(func(re *oauth2errors.Response) {
		logger.Log("oauth", "response error", "error", re.Error)
	})

	return &oauth{server: srv, logger: logger}, nil
}

func addOauthRoutes(r *mux.Router, o *oauth) {
	r.Methods("GET").Path("/authorize").HandlerFunc(o.authorizeHandler)

	if o.server.Config.AllowGetAccessRequest {
		r.Methods("GET").Path("/token").HandlerFunc(o.tokenHandler)
	}
	r.Methods("POST").Path("/token").HandlerFunc(o.tokenHandler)
}

// clientID returns the client behind the request's bearer token.
func (o *oauth) clientID(r *http.Request) (string, error) {
	ti, err := o.server.ValidationBearerToken(r)
	if err != nil {
		return "", err
	}
	if ti.GetClientID() == "" {
		return "", errors.New("missing client_id")
	}
	return ti.GetClientID(), nil
}

// authorizeHandler describes the request's bearer token, or answers
// "400 Bad Request" when there is no valid one.
func (o *oauth) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	ti, err := o.server.ValidationBearerToken(r)
	if err == nil && ti.GetClientID() == "" {
		err = errors.New("missing client_id")
	}
	if err != nil {
		authFailures.With("method", "oauth2").Add(1)
		encodeError(w, err)
		return
	}
	authSuccesses.With("method", "oauth2").Add(1)

	remaining := time.Until(ti.GetAccessCreateAt().Add(ti.GetAccessExpiresIn()))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	err = json.NewEncoder(w).Encode(map[string]interface{}{
		"client_id":  ti.GetClientID(),
		"scope":      ti.GetScope(),
		"expires_in": int64(remaining / time.Second),
	})
	if err != nil {
		o.logger.Log("oauth", err)
	}
}

// tokenHandler passes the request down to the oauth2 library to
// generate a token (or write an error).
func (o *oauth) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := o.server.HandleTokenRequest(w, r); err != nil {
		encodeError(w, err)
		return
	}
	tokenGenerations.With("method", "oauth2").Add(1)
}
