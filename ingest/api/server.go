// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package api implements the HTTP endpoints for submitting passwords and
// reading range files.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/uuid"

	"pwnedpasswords.io/ingest/ingest/pipeline"
	"pwnedpasswords.io/ingest/ingest/shardfiles"
	"pwnedpasswords.io/ingest/private/healthcheck"
	"pwnedpasswords.io/ingest/private/hashutil"
)

var mon = monkit.Package()

// SubscriptionHeader carries the identity of the submitting subscription.
const SubscriptionHeader = "Api-Subscription-Id"

// Config contains configurable values of the API server.
type Config struct {
	Address         string        `help:"address to listen on for API requests" releaseDefault:":8080" devDefault:"127.0.0.1:8080"`
	ShutdownTimeout time.Duration `help:"how long to wait for requests to finish on shutdown" default:"10s"`
	RangeMaxAge     time.Duration `help:"cache lifetime announced for range responses" default:"744h"`
}

// SubmitResponse is the response of a submission.
type SubmitResponse struct {
	TransactionID string `json:"transactionId"`
}

// ConfirmResponse is the response of a confirmation.
type ConfirmResponse struct {
	TransactionID string `json:"transactionId"`
	Confirmed     bool   `json:"confirmed"`
}

// Server serves the API.
type Server struct {
	log      *zap.Logger
	config   Config
	pipeline *pipeline.Service
	shards   *shardfiles.Store

	listener net.Listener
	server   http.Server
	Handler  http.Handler
}

// NewServer creates a new API server on listener. The listener may be nil
// when only Handler is used.
func NewServer(log *zap.Logger, config Config, listener net.Listener, service *pipeline.Service, shards *shardfiles.Store, health *healthcheck.Handler) *Server {
	server := &Server{
		log:      log,
		config:   config,
		pipeline: service,
		shards:   shards,
		listener: listener,
	}

	router := mux.NewRouter()
	router.HandleFunc("/append", server.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/append/{transactionId}", server.handleConfirm).Methods(http.MethodPatch)
	router.HandleFunc("/range/{prefix}", server.handleRange).Methods(http.MethodGet)
	if health != nil {
		health.Register(router)
	}

	server.Handler = router
	server.server = http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(log),
	}
	return server
}

// Run serves requests until ctx is canceled.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancelShutdown()
		return server.server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	})
	return group.Wait()
}

// Close stops the server.
func (server *Server) Close() error {
	return server.server.Close()
}

// Addr returns the address the server listens on.
func (server *Server) Addr() string {
	return server.listener.Addr().String()
}

func (server *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := server.pipeline.Submit(ctx, r.Header.Get(SubscriptionHeader), r.Body)
	if err != nil {
		server.errorResponse(w, r, err)
		return
	}

	server.jsonResponse(w, http.StatusOK, SubmitResponse{TransactionID: id.String()})
}

func (server *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	subscriptionID := r.Header.Get(SubscriptionHeader)
	if subscriptionID == "" {
		err = &ErrorResponse{StatusCode: http.StatusBadRequest, Message: "missing " + SubscriptionHeader + " header"}
		server.errorResponse(w, r, err)
		return
	}

	id, err := uuid.FromString(mux.Vars(r)["transactionId"])
	if err != nil {
		server.errorResponse(w, r, &ErrorResponse{StatusCode: http.StatusBadRequest, Message: "invalid transaction id"})
		return
	}

	if err = server.pipeline.Confirm(ctx, subscriptionID, id); err != nil {
		server.errorResponse(w, r, err)
		return
	}

	server.jsonResponse(w, http.StatusOK, ConfirmResponse{TransactionID: id.String(), Confirmed: true})
}

func (server *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	prefix := mux.Vars(r)["prefix"]
	if !hashutil.IsPrefix(prefix) {
		server.errorResponse(w, r, &ErrorResponse{StatusCode: http.StatusBadRequest, Message: "the hash prefix was not in a valid format"})
		return
	}

	kind, ok := hashutil.ParseKind(r.URL.Query().Get("mode"))
	if !ok {
		server.errorResponse(w, r, &ErrorResponse{StatusCode: http.StatusBadRequest, Message: "unknown mode"})
		return
	}

	reader, info, err := server.shards.Open(ctx, kind, prefix)
	if err != nil {
		server.errorResponse(w, r, err)
		return
	}
	defer func() { _ = reader.Close() }()

	header := w.Header()
	header.Set("Content-Type", "text/plain")
	header.Set("Cache-Control", "public, max-age="+strconv.FormatInt(int64(server.config.RangeMaxAge/time.Second), 10))
	if info.Version != "" {
		header.Set("ETag", `"`+info.Version+`"`)
	}
	if !info.LastModified.IsZero() {
		header.Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	if _, err = io.Copy(w, reader); err != nil {
		server.log.Warn("failed to stream range", zap.String("Prefix", prefix), zap.Stringer("Kind", kind), zap.Error(err))
	}
}

func (server *Server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		server.log.Warn("failed to write response", zap.Error(err))
	}
}

func (server *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	response := toErrorResponse(err)
	if response.StatusCode >= http.StatusInternalServerError {
		server.log.Error("error during API request",
			zap.String("Path", r.URL.Path),
			zap.String("Subscription ID", r.Header.Get(SubscriptionHeader)),
			zap.Error(err))
	} else {
		server.log.Debug("rejected API request", zap.String("Path", r.URL.Path), zap.Error(err))
	}
	server.jsonResponse(w, response.StatusCode, response)
}
