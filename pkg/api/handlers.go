package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/kb"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
)

func (s *Server) recordKBIngest(count int) {
	if s.metrics != nil {
		s.metrics.RecordKBIngest(count)
	}
}

func (s *Server) recordKBAsk(d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordKBAsk(d.Seconds())
	}
}

// submitRequest is the request body for POST /tenants/:tenant_id/queries.
type submitRequest struct {
	Question string `json:"question" binding:"required"`
}

// submitResponse carries the saga id a caller polls via handleStatus.
type submitResponse struct {
	SagaID string `json:"saga_id"`
}

// handleSubmit creates a saga record in StatusPending and publishes it onto
// q.initiated, handing control to Stage 1 (spec §4.5).
func (s *Server) handleSubmit(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sagaID := newSagaID()
	now := time.Now()
	rec := statestore.Record{
		SagaID:           sagaID,
		TenantID:         tenantID,
		Question:         req.Question,
		Status:           statestore.StatusPending,
		RetriesRemaining: s.selfCorrectRetry,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.Create(c.Request.Context(), sagaID, rec, s.recordTTL); err != nil {
		s.log.Error("create saga record", "error", err, "saga_id", sagaID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit question"})
		return
	}

	if err := s.bus.Publish(c.Request.Context(), bus.TopicInitiated, bus.Message{SagaID: sagaID}); err != nil {
		s.log.Error("publish q.initiated", "error", err, "saga_id", sagaID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit question"})
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSagaStarted(tenantID)
	}

	c.JSON(http.StatusAccepted, submitResponse{SagaID: sagaID})
}

// statusResponse mirrors the subset of a saga record a caller needs to poll
// progress and retrieve the final answer (spec §4.5).
type statusResponse struct {
	SagaID            string           `json:"saga_id"`
	Status            statestore.Status `json:"status"`
	GeneratedSQL      *string          `json:"generated_sql,omitempty"`
	FormattedResponse *string          `json:"formatted_response,omitempty"`
	IsIrrelevant      bool             `json:"is_irrelevant"`
	ErrorMessage      *string          `json:"error_message,omitempty"`
	CallStack         []statestore.Step `json:"call_stack"`
}

// handleStatus returns the current state of a saga (spec §4.5). A caller
// polls this until Status is terminal.
func (s *Server) handleStatus(c *gin.Context) {
	sagaID := c.Param("saga_id")

	rec, err := s.store.Get(c.Request.Context(), sagaID)
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "saga not found"})
			return
		}
		s.log.Error("get saga record", "error", err, "saga_id", sagaID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch status"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		SagaID:            rec.SagaID,
		Status:            rec.Status,
		GeneratedSQL:      rec.GeneratedSQL,
		FormattedResponse: rec.FormattedResponse,
		IsIrrelevant:      rec.IsIrrelevant,
		ErrorMessage:      rec.ErrorMessage,
		CallStack:         rec.CallStack,
	})
}

// maxUploadBytes bounds a single knowledge-base document upload.
const maxUploadBytes = 10 << 20 // 10MiB

// kbUploadResponse reports how many chunks a document was split into.
type kbUploadResponse struct {
	ChunkCount int `json:"chunk_count"`
}

// handleKBUpload ingests a multipart document into the tenant's knowledge
// base (spec §4.6).
func (s *Server) handleKBUpload(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload size limit"})
		return
	}

	docBytes := make([]byte, header.Size)
	if _, err := file.Read(docBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}

	count, err := s.kbPipeline.Ingest(c.Request.Context(), kb.IngestInput{
		TenantID: tenantID,
		Filename: header.Filename,
		DocBytes: docBytes,
	})
	if err != nil {
		s.log.Error("ingest document", "error", err, "tenant_id", tenantID, "filename", header.Filename)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not ingest document"})
		return
	}
	s.recordKBIngest(count)

	c.JSON(http.StatusOK, kbUploadResponse{ChunkCount: count})
}

// kbAskRequest is the request body for POST /kb/ask: {tenant_id, query}.
type kbAskRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Question string `json:"query" binding:"required"`
}

// kbAskResponse carries a synthesized answer plus the retrieved context it
// was grounded on (spec §4.7).
type kbAskResponse struct {
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
}

// handleKBAsk answers a question synchronously via retrieval-and-synthesis,
// bypassing the saga pipeline entirely (spec §4.7).
func (s *Server) handleKBAsk(c *gin.Context) {
	var req kbAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	result, err := s.asker.Ask(c.Request.Context(), req.TenantID, req.Question)
	s.recordKBAsk(time.Since(start))
	if err != nil {
		if errors.Is(err, kb.ErrNoContextAvailable) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no relevant knowledge base content found"})
			return
		}
		s.log.Error("answer kb question", "error", err, "tenant_id", req.TenantID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not answer question"})
		return
	}

	c.JSON(http.StatusOK, kbAskResponse{Answer: result.Answer, Context: result.Context})
}
