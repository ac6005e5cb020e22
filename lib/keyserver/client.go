// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bureau-foundation/pdw/lib/codec"
	"github.com/bureau-foundation/pdw/lib/netutil"
)

// Fetcher releases key shares. *Server and *Client both implement it.
type Fetcher interface {
	FetchKey(ctx context.Context, request *FetchRequest) (*FetchResponse, error)
}

// Client calls a key server's HTTP API. Errors wrap the same sentinels
// [Server.FetchKey] returns; transport failures wrap ErrUnavailable.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. A nil
// httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// Service returns the server's identity and public key.
func (c *Client) Service(ctx context.Context) (*ServiceInfo, error) {
	var info ServiceInfo
	if err := c.do(ctx, http.MethodGet, pathService, nil, &info); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return &info, nil
}

// FetchKey sends request to the server.
func (c *Client) FetchKey(ctx context.Context, request *FetchRequest) (*FetchResponse, error) {
	body, err := codec.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("fetch key: encoding request: %w", err)
	}
	var response FetchResponse
	if err := c.do(ctx, http.MethodPost, pathFetchKey, body, &response); err != nil {
		return nil, fmt.Errorf("fetch key: %w", err)
	}
	return &response, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, result any) error {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if body != nil {
		request.Header.Set("Content-Type", netutil.ContentType)
	}
	request.Header.Set("Accept", netutil.ContentType)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		failure := netutil.ErrorBody(response.Body)
		return fmt.Errorf("%w: HTTP %d: %s", errorForCode(failure.Code), response.StatusCode, failure.Message)
	}
	if err := netutil.DecodeBody(response.Body, result); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
