package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/kb"
	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, statestore.Store, bus.Bus) {
	t.Helper()
	store := statestore.NewMemoryStore()
	b := bus.NewMemoryBus()
	mock := llm.NewMockClient()
	vstore := kb.NewInMemoryVectorStore()
	pipeline := kb.NewPipeline(mock, vstore, kb.ChunkerConfig{MaxChunkSize: 500, SimilarityThreshold: 0.5})
	asker := kb.NewAsker(mock, vstore)

	s := NewServer(store, b, pipeline, asker, time.Hour, 1, nil)
	return s, store, b
}

func newTestEngine(s *Server) *gin.Engine {
	e := gin.New()
	s.RegisterRoutes(e.Group("/"))
	return e
}

func TestHandleSubmit_CreatesRecordAndPublishes(t *testing.T) {
	s, store, b := newTestServer(t)
	e := newTestEngine(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := make(chan bus.Message, 1)
	go b.Subscribe(ctx, bus.TopicInitiated, "test-consumer", func(_ context.Context, msg bus.Message) error {
		received <- msg
		return nil
	})

	body, _ := json.Marshal(submitRequest{Question: "how many orders today?"})
	req := httptest.NewRequest(http.MethodPost, "/tenants/tenant-a/queries", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SagaID)

	stored, err := store.Get(context.Background(), resp.SagaID)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", stored.TenantID)
	assert.Equal(t, statestore.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetriesRemaining)

	select {
	case msg := <-received:
		assert.Equal(t, resp.SagaID, msg.SagaID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for q.initiated message")
	}
}

func TestHandleSubmit_MissingQuestionRejected(t *testing.T) {
	s, _, _ := newTestServer(t)
	e := newTestEngine(s)

	req := httptest.NewRequest(http.MethodPost, "/tenants/tenant-a/queries", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatus_ReturnsRecord(t *testing.T) {
	s, store, _ := newTestServer(t)
	e := newTestEngine(s)

	require.NoError(t, store.Create(context.Background(), "saga-1", statestore.Record{
		SagaID: "saga-1", TenantID: "tenant-a", Question: "q",
		Status: statestore.StatusCompleted,
	}, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/queries/saga-1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, statestore.StatusCompleted, resp.Status)
}

func TestHandleStatus_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	e := newTestEngine(s)

	req := httptest.NewRequest(http.MethodGet, "/queries/missing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleKBUpload_IngestsDocument(t *testing.T) {
	s, _, _ := newTestServer(t)
	e := newTestEngine(s)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "policy.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("Revenue is SUM(quantity*price). Costs are tracked separately."))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/tenants/tenant-a/kb/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp kbUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Positive(t, resp.ChunkCount)
}

func TestHandleKBAsk_NoContextReturnsNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	e := newTestEngine(s)

	body, _ := json.Marshal(kbAskRequest{TenantID: "empty-tenant", Question: "anything"})
	req := httptest.NewRequest(http.MethodPost, "/kb/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
