package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/errdefs"
	"github.com/tkohara/ragchat/internal/guardrails"
	"github.com/tkohara/ragchat/internal/ingestion"
	"github.com/tkohara/ragchat/internal/observability"
	"github.com/tkohara/ragchat/internal/repository"
	"github.com/tkohara/ragchat/internal/service"
)

type testServer struct {
	srv    *Server
	users  *fakeUserRepo
	cols   *fakeCollectionRepo
	docs   *fakeDocumentRepo
	store  *fakeVectorStore
	limits *fakeLimiter
}

func newTestServer(t *testing.T, opts ...func(*Config)) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := newFakeUserRepo()
	cols := newFakeCollectionRepo()
	docs := newFakeDocumentRepo()
	store := &fakeVectorStore{}
	embed := &fakeEmbedder{}
	limits := &fakeLimiter{allowed: true}
	guard := guardrails.NewEngine(nil)
	jwt := auth.NewJWTManager(auth.DefaultJWTConfig("test-secret"))

	cfg := Config{
		Logger:      logger,
		Users:       service.NewUserService(users, jwt, nil),
		Collections: service.NewCollectionService(cols, store, embed, nil),
		Documents: service.NewDocumentService(docs, cols, embed, store, guard,
			ingestion.ChunkerConfig{Method: "sentence", TargetSize: 64, MaxSize: 128}, nil),
		Chat:            service.NewChatService(cols, embed, store, &fakeLLM{}, guard),
		UserLookup:      users,
		JWT:             jwt,
		Limiter:         limits,
		DefaultTopK:     5,
		DefaultMinScore: 0.7,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testServer{srv: srv, users: users, cols: cols, docs: docs, store: store, limits: limits}
}

// do performs a request against the router. Body may be nil, a string,
// raw bytes, or anything JSON-marshalable.
func (ts *testServer) do(t *testing.T, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

type wireError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type wireEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *wireError      `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) wireEnvelope {
	t.Helper()
	var env wireEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return env
}

func dataInto(t *testing.T, env wireEnvelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v (data %s)", err, env.Data)
	}
}

func wantErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Error("error response has success=true")
	}
	if env.Error == nil {
		t.Fatal("error response has no error body")
	}
	if env.Error.Code != code {
		t.Errorf("error code = %q, want %q", env.Error.Code, code)
	}
}

func (ts *testServer) register(t *testing.T, email string) (apiKey, userID string) {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/v1/auth/register", nil, map[string]string{
		"email":    email,
		"name":     "Test User",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}

	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		APIKey string `json:"api_key"`
	}
	dataInto(t, decodeEnvelope(t, rec), &out)
	if out.APIKey == "" {
		t.Fatal("register returned no API key")
	}
	return out.APIKey, out.User.ID
}

func (ts *testServer) createCollection(t *testing.T, apiKey, name string) string {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/v1/collections", map[string]string{"X-API-Key": apiKey},
		map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create collection status = %d, body %s", rec.Code, rec.Body.String())
	}
	var col struct {
		ID string `json:"id"`
	}
	dataInto(t, decodeEnvelope(t, rec), &col)
	return col.ID
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestReadyz(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *Config) {
			cfg.ReadyChecks = []ReadyCheck{
				{Name: "postgres", Check: func(context.Context) error { return nil }},
			}
		})
		rec := ts.do(t, http.MethodGet, "/readyz", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("failing check names the dependency", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *Config) {
			cfg.ReadyChecks = []ReadyCheck{
				{Name: "postgres", Check: func(context.Context) error { return nil }},
				{Name: "qdrant", Check: func(context.Context) error { return errors.New("connection refused") }},
			}
		})
		rec := ts.do(t, http.MethodGet, "/readyz", nil, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["failed"] != "qdrant" {
			t.Errorf("failed = %q, want qdrant", body["failed"])
		}
	})
}

func TestStatz(t *testing.T) {
	t.Run("reports event totals", func(t *testing.T) {
		counters := observability.NewCounterSink()
		counters.Record(context.Background(), observability.Event{Type: observability.EventQueryReceived})
		counters.Record(context.Background(), observability.Event{Type: observability.EventQueryReceived})
		counters.Record(context.Background(), observability.Event{Type: observability.EventPipelineError})
		ts := newTestServer(t, func(cfg *Config) { cfg.Counters = counters })

		rec := ts.do(t, http.MethodGet, "/statz", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Events map[string]int64 `json:"events"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Events["query_received"] != 2 {
			t.Errorf("query_received = %d, want 2", body.Events["query_received"])
		}
		if body.Events["pipeline_error"] != 1 {
			t.Errorf("pipeline_error = %d, want 1", body.Events["pipeline_error"])
		}
	})

	t.Run("unmounted without counters", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/statz", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestCORS(t *testing.T) {
	t.Run("default allows any origin", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodOptions, "/v1/chat", map[string]string{"Origin": "https://app.example.com"}, nil)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("preflight status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
		}
	})

	t.Run("unlisted origin gets no CORS headers", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *Config) {
			cfg.AllowedOrigins = []string{"https://app.example.com"}
		})
		rec := ts.do(t, http.MethodOptions, "/v1/chat", map[string]string{"Origin": "https://evil.example.com"}, nil)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want unset", got)
		}
	})

	t.Run("listed origin is echoed", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *Config) {
			cfg.AllowedOrigins = []string{"https://app.example.com"}
		})
		rec := ts.do(t, http.MethodOptions, "/v1/chat", map[string]string{"Origin": "https://app.example.com"}, nil)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q, want the request origin", got)
		}
	})
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)
	apiKey, _ := ts.register(t, "auth@example.com")

	t.Run("missing credentials", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/me", nil, nil)
		wantErrorCode(t, rec, http.StatusUnauthorized, errdefs.CodeUnauthorized)
	})

	t.Run("api key header", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/me", map[string]string{"X-API-Key": apiKey}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("api key as bearer token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/me", map[string]string{"Authorization": "Bearer " + apiKey}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("jwt from login", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/login", nil, map[string]string{
			"email":    "auth@example.com",
			"password": "correct-horse",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
		}
		var tok struct {
			Token string `json:"token"`
		}
		dataInto(t, decodeEnvelope(t, rec), &tok)

		rec = ts.do(t, http.MethodGet, "/v1/me", map[string]string{"Authorization": "Bearer " + tok.Token}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("me status = %d, body %s", rec.Code, rec.Body.String())
		}
		var me struct {
			Email string `json:"email"`
		}
		dataInto(t, decodeEnvelope(t, rec), &me)
		if me.Email != "auth@example.com" {
			t.Errorf("email = %q, want auth@example.com", me.Email)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/me", map[string]string{"Authorization": "Bearer nonsense"}, nil)
		wantErrorCode(t, rec, http.StatusUnauthorized, errdefs.CodeUnauthorized)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/login", nil, map[string]string{
			"email":    "auth@example.com",
			"password": "wrong-password",
		})
		wantErrorCode(t, rec, http.StatusUnauthorized, errdefs.CodeUnauthorized)
	})
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"malformed json", "{not json", errdefs.CodeInvalidRequest},
		{"short password", map[string]string{"email": "a@example.com", "password": "short"}, errdefs.CodeInvalidParameter},
		{"bad email", map[string]string{"email": "not-an-email", "password": "long-enough"}, errdefs.CodeInvalidParameter},
		{"missing password", map[string]string{"email": "a@example.com"}, errdefs.CodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/v1/auth/register", nil, tt.body)
			wantErrorCode(t, rec, http.StatusBadRequest, tt.code)
		})
	}
}

func TestRegisterResponseOmitsSecrets(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/auth/register", nil, map[string]string{
		"email":    "safe@example.com",
		"name":     "Safe",
		"password": "long-enough-pass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var data map[string]json.RawMessage
	dataInto(t, decodeEnvelope(t, rec), &data)
	if _, ok := data["api_key"]; !ok {
		t.Error("register response missing api_key")
	}

	var user map[string]any
	if err := json.Unmarshal(data["user"], &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	for _, field := range []string{"api_key_hash", "password_hash", "APIKeyHash", "PasswordHash"} {
		if _, ok := user[field]; ok {
			t.Errorf("user view leaks %s", field)
		}
	}
}

func TestRotateAPIKey(t *testing.T) {
	ts := newTestServer(t)
	oldKey, _ := ts.register(t, "rotate@example.com")

	rec := ts.do(t, http.MethodPost, "/v1/auth/api-key", map[string]string{"X-API-Key": oldKey}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		APIKey string `json:"api_key"`
	}
	dataInto(t, decodeEnvelope(t, rec), &out)
	if out.APIKey == "" || out.APIKey == oldKey {
		t.Fatalf("rotation returned %q", out.APIKey)
	}

	if rec := ts.do(t, http.MethodGet, "/v1/me", map[string]string{"X-API-Key": oldKey}, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("old key still accepted, status %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/v1/me", map[string]string{"X-API-Key": out.APIKey}, nil); rec.Code != http.StatusOK {
		t.Errorf("new key rejected, status %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Run("denied request gets 429", func(t *testing.T) {
		ts := newTestServer(t)
		key, _ := ts.register(t, "limited@example.com")
		ts.limits.set(false, nil)

		rec := ts.do(t, http.MethodGet, "/v1/me", map[string]string{"X-API-Key": key}, nil)
		wantErrorCode(t, rec, http.StatusTooManyRequests, errdefs.CodeRateLimited)
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		ts := newTestServer(t)
		key, _ := ts.register(t, "open@example.com")
		ts.limits.set(false, errors.New("redis down"))

		rec := ts.do(t, http.MethodGet, "/v1/me", map[string]string{"X-API-Key": key}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})
}

func TestCollectionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	key, _ := ts.register(t, "cols@example.com")
	authz := map[string]string{"X-API-Key": key}

	rec := ts.do(t, http.MethodPost, "/v1/collections", authz, map[string]string{
		"name":        "engineering docs",
		"description": "internal wiki dump",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	dataInto(t, decodeEnvelope(t, rec), &created)
	if created.Name != "engineering docs" {
		t.Errorf("name = %q, want engineering docs", created.Name)
	}
	if created.Status != repository.CollectionStatusReady {
		t.Errorf("status = %q, want ready", created.Status)
	}

	rec = ts.do(t, http.MethodGet, "/v1/collections", authz, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Collections []json.RawMessage `json:"collections"`
		Total       int               `json:"total"`
	}
	dataInto(t, decodeEnvelope(t, rec), &list)
	if list.Total != 1 || len(list.Collections) != 1 {
		t.Errorf("list = %d items, total %d, want 1/1", len(list.Collections), list.Total)
	}

	rec = ts.do(t, http.MethodGet, "/v1/collections/"+created.ID, authz, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/v1/collections/not-a-uuid", authz, nil)
	wantErrorCode(t, rec, http.StatusBadRequest, errdefs.CodeInvalidParameter)

	rec = ts.do(t, http.MethodGet, "/v1/collections/"+uuid.NewString(), authz, nil)
	wantErrorCode(t, rec, http.StatusNotFound, errdefs.CodeNotFound)

	rec = ts.do(t, http.MethodDelete, "/v1/collections/"+created.ID, authz, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
}

func TestChatAppliesDefaults(t *testing.T) {
	ts := newTestServer(t)
	key, _ := ts.register(t, "chat@example.com")
	authz := map[string]string{"X-API-Key": key}
	colID := ts.createCollection(t, key, "notes")

	rec := ts.do(t, http.MethodPost, "/v1/chat", authz, map[string]any{
		"question":      "Where are the deployment notes kept?",
		"collection_id": colID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}

	var res struct {
		Answer            string `json:"answer"`
		ContextChunksUsed int    `json:"context_chunks_used"`
	}
	dataInto(t, decodeEnvelope(t, rec), &res)
	if res.Answer == "" {
		t.Error("empty answer")
	}
	if res.ContextChunksUsed != 0 {
		t.Errorf("context_chunks_used = %d, want 0 with an empty store", res.ContextChunksUsed)
	}

	limit, threshold := ts.store.searchParams()
	if limit != 5 {
		t.Errorf("retrieval limit = %d, want default 5", limit)
	}
	if threshold != 0.7 {
		t.Errorf("score threshold = %v, want default 0.7", threshold)
	}
}

func TestChatRejectsBadKnobs(t *testing.T) {
	ts := newTestServer(t)
	key, _ := ts.register(t, "knobs@example.com")
	authz := map[string]string{"X-API-Key": key}

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing question", map[string]any{"collection_id": uuid.NewString()}},
		{"question too long", map[string]any{"question": strings.Repeat("q", 4001), "collection_id": uuid.NewString()}},
		{"top_k too high", map[string]any{"question": "q", "collection_id": uuid.NewString(), "top_k": 21}},
		{"top_k zero", map[string]any{"question": "q", "collection_id": uuid.NewString(), "top_k": 0}},
		{"threshold above one", map[string]any{"question": "q", "collection_id": uuid.NewString(), "score_threshold": 1.5}},
		{"collection id not a uuid", map[string]any{"question": "q", "collection_id": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/v1/chat", authz, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDocumentUpload(t *testing.T) {
	ts := newTestServer(t)
	key, _ := ts.register(t, "docs@example.com")
	colID := ts.createCollection(t, key, "manuals")

	t.Run("raw body", func(t *testing.T) {
		headers := map[string]string{
			"X-API-Key":    key,
			"Content-Type": "text/plain",
			"X-File-Name":  "install.txt",
		}
		rec := ts.do(t, http.MethodPost, "/v1/collections/"+colID+"/documents", headers,
			"Install the binary. Copy the sample config. Start the daemon.")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var doc struct {
			FileName string `json:"file_name"`
			Status   string `json:"status"`
		}
		dataInto(t, decodeEnvelope(t, rec), &doc)
		if doc.FileName != "install.txt" {
			t.Errorf("file_name = %q, want install.txt", doc.FileName)
		}
		if doc.Status != repository.DocumentStatusProcessing {
			t.Errorf("status = %q, want processing", doc.Status)
		}
	})

	t.Run("multipart form", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="guide.md"`)
		header.Set("Content-Type", "text/markdown")
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte("# Guide\n\nRun the setup script before first use.")); err != nil {
			t.Fatalf("write part: %v", err)
		}
		if err := mw.Close(); err != nil {
			t.Fatalf("close writer: %v", err)
		}

		headers := map[string]string{
			"X-API-Key":    key,
			"Content-Type": mw.FormDataContentType(),
		}
		rec := ts.do(t, http.MethodPost, "/v1/collections/"+colID+"/documents", headers, buf.Bytes())
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var doc struct {
			FileName string `json:"file_name"`
		}
		dataInto(t, decodeEnvelope(t, rec), &doc)
		if doc.FileName != "guide.md" {
			t.Errorf("file_name = %q, want guide.md", doc.FileName)
		}
	})

	t.Run("missing multipart file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.WriteField("note", "no file here"); err != nil {
			t.Fatalf("write field: %v", err)
		}
		if err := mw.Close(); err != nil {
			t.Fatalf("close writer: %v", err)
		}

		headers := map[string]string{
			"X-API-Key":    key,
			"Content-Type": mw.FormDataContentType(),
		}
		rec := ts.do(t, http.MethodPost, "/v1/collections/"+colID+"/documents", headers, buf.Bytes())
		wantErrorCode(t, rec, http.StatusBadRequest, errdefs.CodeInvalidRequest)
	})
}

func TestHTTPStatusByKind(t *testing.T) {
	tests := []struct {
		kind errdefs.Kind
		want int
	}{
		{errdefs.InvalidArgument, http.StatusBadRequest},
		{errdefs.Unauthorized, http.StatusUnauthorized},
		{errdefs.Forbidden, http.StatusForbidden},
		{errdefs.NotFound, http.StatusNotFound},
		{errdefs.FailedPrecondition, http.StatusConflict},
		{errdefs.PolicyViolation, http.StatusUnprocessableEntity},
		{errdefs.RateLimited, http.StatusTooManyRequests},
		{errdefs.Unavailable, http.StatusBadGateway},
		{errdefs.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.kind); got != tt.want {
			t.Errorf("httpStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestRespondErrorHidesUntaggedMessages(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	respondError(rec, logger, errors.New("pq: connection reset while reading credentials"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("raw error text leaked to the client")
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Message != "internal server error" {
		t.Errorf("error body = %+v, want generic message", env.Error)
	}
}

func TestRespondErrorKeepsTaggedDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	err := errdefs.E(errdefs.PolicyViolation, errdefs.CodePolicyViolation, "content policy violation").
		WithDetail("violations", []string{"TOXIC_CONTENT:kill"})
	respondError(rec, logger, err)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil {
		t.Fatal("no error body")
	}
	if env.Error.Code != errdefs.CodePolicyViolation {
		t.Errorf("code = %q, want %q", env.Error.Code, errdefs.CodePolicyViolation)
	}
	if env.Error.Message != "content policy violation" {
		t.Errorf("message = %q", env.Error.Message)
	}
	if env.Error.Details == nil {
		t.Error("details dropped from the wire")
	}
}

func TestMeStats(t *testing.T) {
	ts := newTestServer(t)
	key, _ := ts.register(t, "stats@example.com")

	rec := ts.do(t, http.MethodGet, "/v1/me/stats", map[string]string{"X-API-Key": key}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var stats struct {
		CollectionCount int `json:"collection_count"`
		ChunkCount      int `json:"chunk_count"`
	}
	dataInto(t, decodeEnvelope(t, rec), &stats)
	if stats.CollectionCount != 1 || stats.ChunkCount != 40 {
		t.Errorf("stats = %+v, want the repo's counters", stats)
	}
}
