// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyserver

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/netutil"
	"github.com/bureau-foundation/pdw/lib/version"
)

// HTTP routes.
const (
	pathService  = "/v1/service"
	pathFetchKey = "/v1/fetch_key"
)

// Error codes carried in [netutil.ErrorResponse.Code].
const (
	codeDenied         = "denied"
	codeInvalidProof   = "invalid_proof"
	codeInvalidRequest = "invalid_request"
	codeUnavailable    = "unavailable"
)

// ServiceInfo is the body of GET /v1/service.
type ServiceInfo struct {
	ID        string          `cbor:"1,keyasint"`
	PublicKey string          `cbor:"2,keyasint"`
	PackageID address.Address `cbor:"3,keyasint"`
	Version   string          `cbor:"4,keyasint"`
}

// Handler returns the server's HTTP API:
//
//	GET  /v1/service    ServiceInfo
//	POST /v1/fetch_key  FetchRequest -> FetchResponse
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/service", s.handleService).Methods(http.MethodGet)
	api.HandleFunc("/fetch_key", s.handleFetchKey).Methods(http.MethodPost)
	return router
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	netutil.WriteCBOR(w, http.StatusOK, ServiceInfo{
		ID:        s.id,
		PublicKey: s.publicKey,
		PackageID: s.packageID,
		Version:   version.Short(),
	})
}

func (s *Server) handleFetchKey(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, netutil.MaxBodySize)
	var request FetchRequest
	if err := netutil.DecodeBody(r.Body, &request); err != nil {
		netutil.WriteError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	response, err := s.FetchKey(r.Context(), &request)
	if err != nil {
		status, code := errorStatus(err)
		netutil.WriteError(w, status, code, err.Error())
		return
	}
	netutil.WriteCBOR(w, http.StatusOK, response)
}

// errorStatus maps a FetchKey error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrDenied):
		return http.StatusForbidden, codeDenied
	case errors.Is(err, ErrInvalidProof):
		return http.StatusUnauthorized, codeInvalidProof
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, codeInvalidRequest
	default:
		return http.StatusServiceUnavailable, codeUnavailable
	}
}

// errorForCode maps a response code back to the sentinel a [Client]
// wraps.
func errorForCode(code string) error {
	switch code {
	case codeDenied:
		return ErrDenied
	case codeInvalidProof:
		return ErrInvalidProof
	case codeInvalidRequest:
		return ErrInvalidRequest
	default:
		return ErrUnavailable
	}
}
