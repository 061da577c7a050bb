package http

import (
	"net/http"

	"github.com/dentalrpa/journalize/subsystem/status/storage"

	"github.com/micromdm/nanolib/log"
)

type APIStorage interface {
	storage.ReadStorage
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the various API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
// The logger is adorned with a "handler" key of the endpoint name.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, runner ItemRunner, s APIStorage) {
	mux.Handle(
		prefix+"/item/:reference/process",
		ProcessItemHandler(runner, logger.With("handler", "process item")),
		"POST",
	)
	mux.Handle(
		prefix+"/item/:reference/status",
		GetStatusHandler(s, logger.With("handler", "get status")),
		"GET",
	)
}
