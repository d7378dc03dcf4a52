// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package cachepurge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// CloudflareConfig configures purging through the Cloudflare API.
type CloudflareConfig struct {
	APIURL   string        `help:"base URL of the Cloudflare API" default:"https://api.cloudflare.com/client/v4"`
	ZoneID   string        `help:"Cloudflare zone of the range API, purging is only logged when empty" default:""`
	APIToken string        `help:"Cloudflare API token with cache purge permission" default:"" hidden:"true"`
	Timeout  time.Duration `help:"timeout of a purge request" default:"30s"`
}

// NewPurger returns a CloudflarePurger when a zone is configured and a
// LogPurger otherwise.
func NewPurger(log *zap.Logger, config CloudflareConfig) Purger {
	if config.ZoneID == "" {
		return NewLogPurger(log)
	}
	return NewCloudflarePurger(config, &http.Client{Timeout: config.Timeout})
}

// CloudflarePurger purges URLs with the Cloudflare purge_cache API.
type CloudflarePurger struct {
	config CloudflareConfig
	http   *http.Client
}

// NewCloudflarePurger creates a purger that sends requests with client.
func NewCloudflarePurger(config CloudflareConfig, client *http.Client) *CloudflarePurger {
	config.APIURL = strings.TrimSuffix(config.APIURL, "/")
	return &CloudflarePurger{config: config, http: client}
}

type cloudflareResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Purge removes urls from the zone cache.
func (purger *CloudflarePurger) Purge(ctx context.Context, urls []string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(urls) > MaxURLsPerPurge {
		return Error.New("cannot purge %d urls at once", len(urls))
	}

	payload, err := json.Marshal(struct {
		Files []string `json:"files"`
	}{Files: urls})
	if err != nil {
		return Error.Wrap(err)
	}

	endpoint := purger.config.APIURL + "/zones/" + purger.config.ZoneID + "/purge_cache"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+purger.config.APIToken)

	resp, err := purger.http.Do(req)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(resp.Body.Close())) }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Error.Wrap(err)
	}

	var result cloudflareResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Error.New("unexpected response %d: %q", resp.StatusCode, body)
	}
	if resp.StatusCode != http.StatusOK || !result.Success {
		var group errs.Group
		for _, e := range result.Errors {
			group.Add(errs.New("%d: %s", e.Code, e.Message))
		}
		return Error.New("purge rejected with status %d: %v", resp.StatusCode, group.Err())
	}
	return nil
}

// LogPurger only logs the URLs it is asked to purge.
type LogPurger struct {
	log *zap.Logger
}

// NewLogPurger creates a purger that logs with log.
func NewLogPurger(log *zap.Logger) *LogPurger {
	return &LogPurger{log: log}
}

// Purge logs urls.
func (purger *LogPurger) Purge(ctx context.Context, urls []string) error {
	purger.log.Info("purge", zap.Strings("URLs", urls))
	return nil
}
