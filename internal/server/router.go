// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"
	"sync"

	"github.com/whintake/whintake/internal/server/handlers"
	"github.com/whintake/whintake/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router.
//
// stop is called, on its own goroutine, when the operator asks the server
// to shut down. limits may be nil to disable throttling.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, limits *ratelimit.Config, stop func()) http.Handler {
	mux := &http.ServeMux{}
	rh := &handlers.RecordHandler{Svc: svc, Cfg: cfg}
	eh := &handlers.ExportHandler{Svc: svc}
	resth := &handlers.RestoreHandler{Svc: svc, Cfg: cfg}
	oh := &handlers.OptionsHandler{Cfg: cfg}
	ph := &handlers.PageHandler{Cfg: cfg}
	hh := handlers.NewHealthHandler(cfg.Version)
	sch := handlers.NewSchemaHandler()
	sh := &handlers.ShutdownHandler{Stop: stop}

	// Records
	mux.Handle("GET /api/records", Wrap(rh.ListRecords, cfg))
	mux.Handle("POST /api/submit", Wrap(rh.Submit, cfg))
	mux.Handle("DELETE /api/record/{id}", Wrap(rh.DeleteRecord, cfg))
	mux.HandleFunc("GET /api/export", eh.Export)
	mux.HandleFunc("POST /api/restore", resth.Restore)

	// Form support
	mux.HandleFunc("GET /api/options", oh.Options)
	mux.Handle("GET /api/schema", Wrap(sch.Schema, cfg))

	// Operations
	mux.Handle("GET /api/health", Wrap(hh.Health, cfg))
	mux.Handle("GET /api/shutdown", Wrap(sh.Shutdown, cfg))
	mux.Handle("POST /api/shutdown", Wrap(sh.Shutdown, cfg))
	if svc.Metrics != nil {
		mux.Handle("GET /metrics", svc.Metrics.Handler())
	}

	// Pages
	mux.HandleFunc("GET /{$}", ph.Form)
	mux.HandleFunc("GET /viewer", ph.Viewer)

	var mu sync.Mutex
	return LogRequests(svc.Metrics, RateLimit(limits, Serialize(&mu, mux)))
}
