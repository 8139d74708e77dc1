// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"go.uber.org/atomic"

	"github.com/sashimi-data/sashimi/pkg/config"
	"github.com/sashimi-data/sashimi/pkg/project"
	"github.com/sashimi-data/sashimi/pkg/util/log"
	"github.com/sashimi-data/sashimi/pkg/version"
)

const startedTimeFormat = "2006-01-02 15:04:05"

// Server is the HTTP facade: the banner at / and the tenant API under
// /ds.
type Server struct {
	registry *project.Registry
	fs       afero.Fs
	router   *mux.Router
	started  time.Time

	runID      string
	requestSeq *atomic.Uint64
}

// NewServer builds the facade over a loaded registry. The filesystem is
// the one the registry reads configs from.
func NewServer(registry *project.Registry, fs afero.Fs) *Server {
	s := &Server{
		registry:   registry,
		fs:         fs,
		started:    time.Now(),
		runID:      uuid.New().String(),
		requestSeq: atomic.NewUint64(0),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.banner).Methods(http.MethodGet)

	ds := r.PathPrefix("/ds").Subrouter()
	ds.HandleFunc("/", s.createProject).Methods(http.MethodPost)

	// _config routes must come before the wildcard dataset routes
	ds.HandleFunc("/{project}/_config", s.getProjectConfig).Methods(http.MethodGet)
	ds.HandleFunc("/{project}/_config", s.postProjectConfig).Methods(http.MethodPost)
	ds.HandleFunc("/{project}/{ds}/_config", s.getDatasetConfig).Methods(http.MethodGet)
	ds.HandleFunc("/{project}/{ds}/_config", s.postDatasetConfig).Methods(http.MethodPost)

	ds.HandleFunc("/{project}", s.projectOp).Methods(http.MethodPost)
	ds.HandleFunc("/{project}", s.projectInfo).Methods(http.MethodGet)
	ds.HandleFunc("/{project}", s.uploadDataset).Methods(http.MethodPut)
	ds.HandleFunc("/{project}", s.removeDataset).Methods(http.MethodDelete)

	ds.HandleFunc("/{project}/{ds}", s.search).Methods(http.MethodPost)
	ds.HandleFunc("/{project}/{ds}", s.datasetStatus).Methods(http.MethodGet)
	ds.HandleFunc("/{project}/{ds}", s.patchDataset).Methods(http.MethodPatch)
	ds.HandleFunc("/{project}/{ds}", s.insertRecord).Methods(http.MethodPut)
	ds.HandleFunc("/{project}/{ds}/{search}", s.namedSearch).Methods(http.MethodGet)

	s.router = r
	return s
}

// Handler returns the router wrapped with the middleware stack, CORS
// included when origins are configured.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if origins := config.Sashimi.GetStringSlice("origins"); len(origins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		)(h)
	}
	h = s.requestLogger(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(h)
	return h
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	log.Error(v...)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := fmt.Sprintf("%s-%d", s.runID[:8], s.requestSeq.Inc())
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r)
		log.Debugf("%s %s %s from %s in %s", reqID, r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

func (s *Server) banner(w http.ResponseWriter, r *http.Request) {
	host := r.RemoteAddr
	if ip, err := clientIP(r, s.registry.Master()); err == nil {
		host = ip
	}
	writePrettyJSON(w, http.StatusOK, map[string]interface{}{
		"description": "sashimi :: fast and safe search inside structured data",
		"version":     version.Version,
		"started":     s.started.UTC().Format(startedTimeFormat),
		"build_time":  version.BuildTime,
		"client_host": host,
		"tenants":     strings.Join(s.registry.Names(), " "),
		"run_id":      s.runID,
	})
}

// roundTime reports elapsed seconds rounded to milliseconds, as the
// envelopes expose it.
func roundTime(since time.Duration) float64 {
	return float64(since.Round(time.Millisecond)) / float64(time.Second)
}
