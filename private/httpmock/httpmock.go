// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package httpmock provides an http.RoundTripper that replays canned
// responses and records the requests it served.
package httpmock

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Response represents a mocked HTTP response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Request is a request received by the Transport.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Transport is a custom HTTP transport for handling mocked responses.
type Transport struct {
	mu        sync.Mutex
	responses map[string][]Response
	requests  []Request
}

// NewTransport creates a new instance of Transport.
func NewTransport() *Transport {
	return &Transport{
		responses: make(map[string][]Response),
	}
}

// AddResponse registers a response for a given URL.
// Multiple responses for the same URL are returned in sequence.
func (t *Transport) AddResponse(url string, response Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[url] = append(t.responses[url], response)
}

// Requests returns the requests received so far.
func (t *Transport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Request(nil), t.requests...)
}

// RoundTrip implements the http.RoundTripper interface.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	url := req.URL.String()
	t.requests = append(t.requests, Request{
		Method: req.Method,
		URL:    url,
		Header: req.Header.Clone(),
		Body:   bytes.Clone(body),
	})

	responses := t.responses[url]
	if len(responses) == 0 {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader("Not Found")),
			Request:    req,
		}, nil
	}

	response := responses[0]
	t.responses[url] = responses[1:]

	headers := make(http.Header)
	for key, value := range response.Headers {
		headers.Set(key, value)
	}

	return &http.Response{
		StatusCode: response.StatusCode,
		Header:     headers,
		Body:       io.NopCloser(strings.NewReader(response.Body)),
		Request:    req,
	}, nil
}

// NewClient creates an *http.Client configured to use the Transport.
func NewClient() (*http.Client, *Transport) {
	transport := NewTransport()
	client := &http.Client{Transport: transport}
	return client, transport
}
