// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// defaultHTTPClient is overridden in tests.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// statusClient reads a running status server.
type statusClient struct {
	baseURL string
	http    *http.Client
}

func newStatusClient(addr string) *statusClient {
	return &statusClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON decodes a GET response into dest. A refused connection yields
// CodeCLIServerDown.
func (c *statusClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return pgerr.Wrap(err, pgerr.CodeCLIServerDown, "status server is not running")
		}
		return pgerr.Errorf(pgerr.CodeServerRequestInvalid, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pgerr.Errorf(pgerr.CodeServerInternalFailure, "status server returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pgerr.Errorf(pgerr.CodeServerInternalFailure, "invalid response: %w", err)
	}
	return nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
