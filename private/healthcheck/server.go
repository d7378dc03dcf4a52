// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package healthcheck serves the health of the storage backends over HTTP.
package healthcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var mon = monkit.Package()

var (
	// Error class for this package.
	Error = errs.Class("healthcheck")
	// ErrCheckExists is returned when a check with the same name already exists.
	ErrCheckExists = Error.New("check with name already exists")
)

// HealthCheck is an interface that defines the methods for a health check.
type HealthCheck interface {
	// Healthy returns true if the service is healthy.
	Healthy(ctx context.Context) bool
	// Name returns the name of the service being checked.
	Name() string
}

// Func adapts a probe to a HealthCheck. The check is healthy when probe
// returns nil within the timeout.
type Func struct {
	CheckName string
	Timeout   time.Duration
	Probe     func(ctx context.Context) error
}

// Name implements HealthCheck.
func (check Func) Name() string { return check.CheckName }

// Healthy implements HealthCheck.
func (check Func) Healthy(ctx context.Context) bool {
	if check.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, check.Timeout)
		defer cancel()
	}
	return check.Probe(ctx) == nil
}

// Handler serves the results of health checks.
type Handler struct {
	log    *zap.Logger
	checks map[string]HealthCheck
}

// NewHandler creates a handler for checks.
func NewHandler(log *zap.Logger, checks ...HealthCheck) *Handler {
	handler := &Handler{
		log:    log,
		checks: make(map[string]HealthCheck, len(checks)),
	}
	for _, check := range checks {
		handler.checks[check.Name()] = check
	}
	return handler
}

// AddCheck adds a health check to the handler.
func (handler *Handler) AddCheck(check HealthCheck) error {
	if _, ok := handler.checks[check.Name()]; ok {
		return ErrCheckExists
	}
	handler.checks[check.Name()] = check
	return nil
}

// Names returns the names of all checks.
func (handler *Handler) Names() []string {
	names := make([]string, 0, len(handler.checks))
	for name := range handler.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds the /health routes to router.
func (handler *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", handler.handleAll).Methods(http.MethodGet)
	router.HandleFunc("/health/{name}", handler.handleSingle).Methods(http.MethodGet)
}

func (handler *Handler) handleAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	results := make(map[string]bool, len(handler.checks))
	allHealthy := true
	for name, check := range handler.checks {
		healthy := check.Healthy(ctx)
		allHealthy = allHealthy && healthy
		results[name] = healthy
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	err = handler.respond(w, status, results)
}

func (handler *Handler) handleSingle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	check, ok := handler.checks[mux.Vars(r)["name"]]
	if !ok {
		err = handler.respond(w, http.StatusNotFound, map[string]string{"error": "unknown check name"})
		return
	}

	healthy := check.Healthy(ctx)
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	err = handler.respond(w, status, map[string]bool{"healthy": healthy})
}

func (handler *Handler) respond(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		handler.log.Error("Failed to encode health check response", zap.Error(err))
	}
	return err
}
