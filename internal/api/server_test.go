package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxide/voxrag/internal/index"
	"github.com/voxide/voxrag/internal/search"
	"github.com/voxide/voxrag/internal/store"
)

const testDim = 8

type testServer struct {
	srv  *Server
	vecs *store.MmapVectorStore
	meta *store.BoltMetadataStore
}

// newTestServer opens the full stack in dir, replaying the vector store
// into the index the way serve does at startup.
func newTestServer(t *testing.T, dir string) *testServer {
	t.Helper()

	vecs, err := store.NewMmapVectorStore(filepath.Join(dir, "vectors.bin"), testDim)
	require.NoError(t, err)

	meta, err := store.NewBoltMetadataStore(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)

	idx := index.New(vecs)
	require.NoError(t, idx.Rebuild())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := search.NewEngine(idx, vecs, meta, 64, logger)
	require.NoError(t, err)

	ts := &testServer{
		srv:  NewServer(eng, idx, meta, vecs, search.DefaultOptions(), logger),
		vecs: vecs,
		meta: meta,
	}
	t.Cleanup(func() { ts.close() })
	return ts
}

func (ts *testServer) close() {
	_ = ts.meta.Close()
	_ = ts.vecs.Close()
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// unitVector returns a testDim vector with 1 at position i.
func unitVector(i int) store.Vector {
	v := make(store.Vector, testDim)
	v[i] = 1
	return v
}

func ingestBody(docID, namespace string, chunks ...IngestChunk) IngestRequest {
	return IngestRequest{
		Namespace: namespace,
		Document:  store.Document{ID: docID, Source: "test.go"},
		Chunks:    chunks,
	}
}

func TestServer_RootAndHealth(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	rec := ts.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decodeJSON(t, rec)
	assert.Equal(t, ServiceName, root["service"])
	assert.Equal(t, true, root["ok"])

	rec = ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeJSON(t, rec)
	assert.Equal(t, true, health["ok"])
	assert.EqualValues(t, 0, health["vec_count"])
}

func TestServer_RetrieveEmptyStore(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	rec := ts.do(t, http.MethodPost, "/retrieve", RetrieveRequest{Query: unitVector(0)})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeJSON(t, rec)
	assert.Empty(t, res["chunks"])
	assert.EqualValues(t, 0, res["total_tokens"])
	assert.Equal(t, false, res["truncated"])
}

func TestServer_IngestRetrieveRoundTrip(t *testing.T) {
	// Given: one ingested document with one chunk
	ts := newTestServer(t, t.TempDir())

	rec := ts.do(t, http.MethodPost, "/ingest", ingestBody("doc-1", "proj", IngestChunk{
		DocID:      "doc-1",
		Vector:     unitVector(0),
		Content:    "func main() {}",
		StartLine:  1,
		EndLine:    3,
		TokenCount: 10,
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	ing := decodeJSON(t, rec)
	assert.Equal(t, "ingested", ing["status"])
	assert.Equal(t, "doc-1", ing["doc_id"])
	assert.EqualValues(t, 1, ing["vector_count"])

	// When: I retrieve at the chunk's position
	rec = ts.do(t, http.MethodPost, "/retrieve", RetrieveRequest{Query: unitVector(0)})
	require.Equal(t, http.StatusOK, rec.Code)

	// Then: the chunk comes back with its content and token totals
	res := decodeJSON(t, rec)
	chunks := res["chunks"].([]any)
	require.Len(t, chunks, 1)
	chunk := chunks[0].(map[string]any)["chunk"].(map[string]any)
	assert.Equal(t, "func main() {}", chunk["content"])
	assert.Equal(t, "doc-1", chunk["doc_id"])
	assert.EqualValues(t, 10, res["total_tokens"])
	assert.Equal(t, false, res["truncated"])
}

func TestServer_NamespaceIsolation(t *testing.T) {
	// Given: identical vectors ingested into two namespaces
	ts := newTestServer(t, t.TempDir())
	for _, ns := range []string{"alpha", "beta"} {
		rec := ts.do(t, http.MethodPost, "/ingest", ingestBody("doc-"+ns, ns, IngestChunk{
			DocID:      "doc-" + ns,
			Vector:     unitVector(0),
			Content:    ns + " content",
			TokenCount: 5,
		}))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// When: I retrieve filtered to alpha
	rec := ts.do(t, http.MethodPost, "/retrieve", RetrieveRequest{
		Namespace: "alpha",
		Query:     unitVector(0),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Then: only the alpha chunk is returned
	res := decodeJSON(t, rec)
	chunks := res["chunks"].([]any)
	require.Len(t, chunks, 1)
	chunk := chunks[0].(map[string]any)["chunk"].(map[string]any)
	assert.Equal(t, "alpha content", chunk["content"])
}

func TestServer_TokenBudgetTruncation(t *testing.T) {
	// Given: two chunks whose combined tokens exceed the request budget
	ts := newTestServer(t, t.TempDir())
	rec := ts.do(t, http.MethodPost, "/ingest", ingestBody("doc-1", "",
		IngestChunk{DocID: "doc-1", Vector: unitVector(0), Content: "big", TokenCount: 200},
		IngestChunk{DocID: "doc-1", Vector: unitVector(0), Content: "small", TokenCount: 100},
	))
	require.Equal(t, http.StatusOK, rec.Code)

	// When: I retrieve with max_tokens below the first chunk's size
	rec = ts.do(t, http.MethodPost, "/retrieve", RetrieveRequest{
		Query:     unitVector(0),
		MaxTokens: 150,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Then: only the small chunk fits and the result is marked truncated
	res := decodeJSON(t, rec)
	chunks := res["chunks"].([]any)
	require.Len(t, chunks, 1)
	chunk := chunks[0].(map[string]any)["chunk"].(map[string]any)
	assert.Equal(t, "small", chunk["content"])
	assert.EqualValues(t, 100, res["total_tokens"])
	assert.Equal(t, true, res["truncated"])
}

func TestServer_IngestMessage(t *testing.T) {
	// Given: a chat message with an explicit message id
	ts := newTestServer(t, t.TempDir())

	rec := ts.do(t, http.MethodPost, "/ingest_message", IngestMessageRequest{
		Namespace:      "proj",
		ConversationID: "conv-1",
		MessageID:      "m-1",
		Role:           "user",
		Content:        "how do I open the store?",
		Vector:         unitVector(1),
		TokenCount:     8,
	})

	// Then: the doc id is derived from conversation and message ids
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeJSON(t, rec)
	assert.Equal(t, "ingested_message", res["status"])
	assert.Equal(t, "chat:conv-1:m-1", res["doc_id"])
	assert.Equal(t, "m-1", res["message_id"])

	// And: it is retrievable under its namespace
	rec = ts.do(t, http.MethodPost, "/retrieve", RetrieveRequest{
		Namespace: "proj",
		Query:     unitVector(1),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	chunks := out["chunks"].([]any)
	require.Len(t, chunks, 1)
	chunk := chunks[0].(map[string]any)["chunk"].(map[string]any)
	assert.Equal(t, "how do I open the store?", chunk["content"])
}

func TestServer_IngestMessageGeneratesMessageID(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	rec := ts.do(t, http.MethodPost, "/ingest_message", IngestMessageRequest{
		Namespace:      "proj",
		ConversationID: "conv-1",
		Role:           "assistant",
		Content:        "reply",
		Vector:         unitVector(2),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeJSON(t, rec)
	msgID := res["message_id"].(string)
	assert.True(t, strings.HasPrefix(msgID, "msg-"))
	assert.Equal(t, "chat:conv-1:"+msgID, res["doc_id"])
}

func TestServer_ValidationErrors(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	cases := []struct {
		name string
		path string
		body any
	}{
		{"ingest without document id", "/ingest", IngestRequest{}},
		{"retrieve without query", "/retrieve", RetrieveRequest{Namespace: "proj"}},
		{"message without namespace", "/ingest_message", IngestMessageRequest{
			ConversationID: "c", Role: "user", Content: "x", Vector: unitVector(0),
		}},
		{"message without conversation id", "/ingest_message", IngestMessageRequest{
			Namespace: "p", Role: "user", Content: "x", Vector: unitVector(0),
		}},
		{"message without vector", "/ingest_message", IngestMessageRequest{
			Namespace: "p", ConversationID: "c", Role: "user", Content: "x",
		}},
		{"message with bad timestamp", "/ingest_message", IngestMessageRequest{
			Namespace: "p", ConversationID: "c", Role: "user", Content: "x",
			Vector: unitVector(0), TimestampUTC: "yesterday",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, rec.Body.String())
		})
	}
}

func TestServer_IngestWrongDimension(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	rec := ts.do(t, http.MethodPost, "/ingest", ingestBody("doc-1", "", IngestChunk{
		DocID:      "doc-1",
		Vector:     store.Vector{1, 2}, // store dimension is testDim
		Content:    "bad",
		TokenCount: 1,
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "dimension")
}

func TestServer_ResetRebuildsFromStore(t *testing.T) {
	// Given: an ingested chunk
	ts := newTestServer(t, t.TempDir())
	rec := ts.do(t, http.MethodPost, "/ingest", ingestBody("doc-1", "", IngestChunk{
		DocID: "doc-1", Vector: unitVector(0), Content: "kept", TokenCount: 5,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	// When: I reset
	rec = ts.do(t, http.MethodPost, "/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reset_ok", decodeJSON(t, rec)["status"])

	// Then: persisted vectors are still retrievable via the rebuilt graph
	rec = ts.do(t, http.MethodPost, "/retrieve", RetrieveRequest{Query: unitVector(0)})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeJSON(t, rec)
	require.Len(t, res["chunks"].([]any), 1)
}

func TestServer_RestartDurability(t *testing.T) {
	// Given: a server that ingested one document, then shut down
	dir := t.TempDir()
	ts := newTestServer(t, dir)
	rec := ts.do(t, http.MethodPost, "/ingest", ingestBody("doc-1", "proj", IngestChunk{
		DocID: "doc-1", Vector: unitVector(0), Content: "survives restart", TokenCount: 5,
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	ts.close()

	// When: a new server opens the same data directory
	ts2 := newTestServer(t, dir)

	// Then: the replayed index answers the same query
	rec = ts2.do(t, http.MethodPost, "/retrieve", RetrieveRequest{
		Namespace: "proj",
		Query:     unitVector(0),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeJSON(t, rec)
	chunks := res["chunks"].([]any)
	require.Len(t, chunks, 1)
	chunk := chunks[0].(map[string]any)["chunk"].(map[string]any)
	assert.Equal(t, "survives restart", chunk["content"])
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	rec := ts.do(t, http.MethodGet, "/ingest", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
