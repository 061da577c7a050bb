// Package http contains HTTP handlers that drive the journalizing engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dentalrpa/journalize/http/api"
	"github.com/dentalrpa/journalize/logkeys"
	"github.com/dentalrpa/journalize/process"
	"github.com/dentalrpa/journalize/subsystem/status/storage"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoReference = errors.New("no item reference provided")
	ErrNoRunner    = errors.New("missing item runner")
)

// ItemRunner processes one journalizing item start to finish.
type ItemRunner interface {
	Run(ctx context.Context, item *process.Item) error
}

// ProcessItemHandler creates a HandlerFunc that runs the journalizing
// pipeline for the item in the request body. The URL reference takes
// precedence over any reference in the body. Processing is synchronous;
// the response carries the run outcome.
func ProcessItemHandler(runner ItemRunner, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)

		reference := flow.Param(r.Context(), "reference")
		if reference == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoReference)
			api.JSONError(w, ErrNoReference, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.Reference, reference)

		item := new(process.Item)
		if err := json.NewDecoder(r.Body).Decode(item); err != nil {
			logger.Info(logkeys.Message, "decoding item", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		item.Reference = reference

		if err := item.Validate(); err != nil {
			logger.Info(logkeys.Message, "validating item", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		if runner == nil {
			logger.Info(logkeys.Message, "processing item", logkeys.Error, ErrNoRunner)
			api.JSONError(w, ErrNoRunner, 0)
			return
		}

		logger.Debug(logkeys.Message, "processing item")
		if err := runner.Run(r.Context(), item); err != nil {
			logger.Info(logkeys.Message, "processing item", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		jsonResp := &struct {
			Status process.Status `json:"status"`
		}{Status: process.StatusSuccessful}
		if err := api.JSON(w, jsonResp, http.StatusOK); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

// GetStatusHandler creates a HandlerFunc that returns the persisted
// status and per-step response metadata for an item reference.
func GetStatusHandler(s APIStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)

		reference := flow.Param(r.Context(), "reference")
		if reference == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoReference)
			api.JSONError(w, ErrNoReference, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.Reference, reference)

		status, err := s.RetrieveProcessStatus(r.Context(), reference)
		if errors.Is(err, storage.ErrNotFound) {
			logger.Debug(logkeys.Message, "retrieving status", logkeys.Error, err)
			api.JSONError(w, err, http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Info(logkeys.Message, "retrieving status", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		responses, err := s.RetrieveResponseMetadata(r.Context(), reference)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Info(logkeys.Message, "retrieving response metadata", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		jsonResp := &struct {
			Status    process.Status              `json:"status"`
			Responses map[string]storage.Fragment `json:"responses,omitempty"`
		}{Status: status, Responses: responses}
		if err := api.JSON(w, jsonResp, http.StatusOK); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}
