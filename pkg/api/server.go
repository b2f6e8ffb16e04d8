// Package api implements the Query API Contract (C5): submit-and-poll for
// saga questions, plus the knowledge-base upload/ask endpoints.
package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/kb"
	"github.com/nadermedhet148/sql-insight-engine/pkg/metrics"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
)

// Server exposes the query, knowledge-base, and (optionally) registry HTTP
// surfaces over a single gin engine.
type Server struct {
	store            statestore.Store
	bus              bus.Bus
	kbPipeline       *kb.Pipeline
	asker            *kb.Asker
	recordTTL        time.Duration
	selfCorrectRetry int
	metrics          *metrics.Metrics
	log              *slog.Logger
}

// NewServer constructs a Server. recordTTL and selfCorrectRetry seed every
// newly-submitted saga record (spec §3, §4.8). m may be nil, in which case
// metrics recording is skipped.
func NewServer(store statestore.Store, b bus.Bus, pipeline *kb.Pipeline, asker *kb.Asker, recordTTL time.Duration, selfCorrectRetry int, m *metrics.Metrics) *Server {
	return &Server{
		store:            store,
		bus:              b,
		kbPipeline:       pipeline,
		asker:            asker,
		recordTTL:        recordTTL,
		selfCorrectRetry: selfCorrectRetry,
		metrics:          m,
		log:              slog.With("component", "api"),
	}
}

// RegisterRoutes mounts the query and knowledge-base endpoints on rg (spec §6).
func (s *Server) RegisterRoutes(rg gin.IRouter) {
	rg.POST("/tenants/:tenant_id/queries", s.handleSubmit)
	rg.GET("/queries/:saga_id", s.handleStatus)
	rg.POST("/tenants/:tenant_id/kb/upload", s.handleKBUpload)
	rg.POST("/kb/ask", s.handleKBAsk)
}

func newSagaID() string {
	return uuid.NewString()
}
