// Package api exposes the record service over HTTP.
//
// Routes (all under the configured base path):
//
//	GET    /health                liveness
//	GET    /ready                 storage probe result
//	GET    /stats                 operation counters and storage size
//	GET    /predictions/{userId}  list predictions
//	POST   /predictions/{userId}  save one prediction
//	DELETE /predictions/{userId}  clear all predictions
//	GET    /profile/{userId}      fetch profile (null if none)
//	POST   /profile/{userId}      replace profile
package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/premia/internal/health"
	"github.com/dreamware/premia/internal/records"
	"github.com/dreamware/premia/internal/storage"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// StatsSource provides the /stats payload
type StatsSource interface {
	Snapshot(ctx context.Context) (storage.InstrumentedStats, error)
}

// Readiness provides the /ready verdict
type Readiness interface {
	IsHealthy() bool
	Report() health.Report
}

// Options configures optional parts of the server
type Options struct {
	BasePath string      // e.g. "/make-server-201dba08"; "" mounts at the root
	Stats    StatsSource // nil disables /stats
	Ready    Readiness   // nil makes /ready always succeed
	Log      logrus.FieldLogger
}

// Server routes HTTP requests to a records.Service
type Server struct {
	records *records.Service
	stats   StatsSource
	ready   Readiness
	log     logrus.FieldLogger
	base    string
}

// NewServer creates a server for svc
func NewServer(svc *records.Service, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		records: svc,
		stats:   opts.Stats,
		ready:   opts.Ready,
		log:     log,
		base:    opts.BasePath,
	}
}

// Handler returns the complete handler chain: request logging, recovery, CORS, routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+s.base+"/health", s.handleHealth)
	mux.HandleFunc("GET "+s.base+"/ready", s.handleReady)
	if s.stats != nil {
		mux.HandleFunc("GET "+s.base+"/stats", s.handleStats)
	}

	mux.HandleFunc("GET "+s.base+"/predictions/{userId}", s.handleListPredictions)
	mux.HandleFunc("POST "+s.base+"/predictions/{userId}", s.handleSavePrediction)
	mux.HandleFunc("DELETE "+s.base+"/predictions/{userId}", s.handleClearPredictions)

	mux.HandleFunc("GET "+s.base+"/profile/{userId}", s.handleGetProfile)
	mux.HandleFunc("POST "+s.base+"/profile/{userId}", s.handleSetProfile)

	return s.logRequests(s.recoverPanics(cors(mux)))
}
