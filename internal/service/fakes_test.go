package service

// In-memory fakes shared by the service tests. Each fake implements
// just enough behavior for the tests to steer: canned results, error
// injection, and call recording.

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/llm"
	"github.com/tkohara/ragchat/internal/observability"
	"github.com/tkohara/ragchat/internal/repository"
	"github.com/tkohara/ragchat/internal/reranker"
	"github.com/tkohara/ragchat/internal/vectorstore"
)

func identityContext(userID uuid.UUID) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{
		UserID: userID,
		Email:  "user@example.com",
		Name:   "Test User",
		Tier:   repository.TierFree,
	})
}

func identityUserID(ctx context.Context) uuid.UUID {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return identity.UserID
}

type fakeCollectionRepo struct {
	mu   sync.Mutex
	cols map[uuid.UUID]*repository.Collection
}

func newFakeCollectionRepo(cols ...*repository.Collection) *fakeCollectionRepo {
	f := &fakeCollectionRepo{cols: make(map[uuid.UUID]*repository.Collection)}
	for _, c := range cols {
		cp := *c
		f.cols[c.ID] = &cp
	}
	return f
}

func (f *fakeCollectionRepo) Create(_ context.Context, col *repository.Collection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cols {
		if c.OwnerID == col.OwnerID && c.Name == col.Name {
			return repository.ErrDuplicate
		}
	}
	cp := *col
	f.cols[col.ID] = &cp
	return nil
}

func (f *fakeCollectionRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.cols[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *col
	return &cp, nil
}

func (f *fakeCollectionRepo) List(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*repository.Collection, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*repository.Collection{}
	for _, c := range f.cols {
		if c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (f *fakeCollectionRepo) Update(_ context.Context, col *repository.Collection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cols[col.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *col
	f.cols[col.ID] = &cp
	return nil
}

func (f *fakeCollectionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.cols[id]
	if !ok {
		return repository.ErrNotFound
	}
	col.Status = status
	return nil
}

func (f *fakeCollectionRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cols[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.cols, id)
	return nil
}

func (f *fakeCollectionRepo) status(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if col, ok := f.cols[id]; ok {
		return col.Status
	}
	return ""
}

type fakeDocumentRepo struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*repository.Document
	chunks    map[uuid.UUID][]*repository.DocumentChunk
	chunksErr error
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		docs:   make(map[uuid.UUID]*repository.Document),
		chunks: make(map[uuid.UUID][]*repository.DocumentChunk),
	}
}

func (f *fakeDocumentRepo) Create(_ context.Context, doc *repository.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.CollectionID == doc.CollectionID && d.SHA256 == doc.SHA256 {
			return repository.ErrDuplicate
		}
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocumentRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocumentRepo) GetBySHA256(_ context.Context, collectionID uuid.UUID, hash string) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.CollectionID == collectionID && d.SHA256 == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDocumentRepo) List(_ context.Context, collectionID uuid.UUID, status string, limit, offset int) ([]*repository.Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*repository.Document{}
	for _, d := range f.docs {
		if d.CollectionID != collectionID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (f *fakeDocumentRepo) Update(_ context.Context, doc *repository.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocumentRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeDocumentRepo) CreateChunks(_ context.Context, chunks []*repository.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunksErr != nil {
		return f.chunksErr
	}
	for _, c := range chunks {
		cp := *c
		f.chunks[c.DocumentID] = append(f.chunks[c.DocumentID], &cp)
	}
	return nil
}

func (f *fakeDocumentRepo) GetChunks(_ context.Context, documentID uuid.UUID, limit, offset int) ([]*repository.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*repository.DocumentChunk{}, f.chunks[documentID]...), nil
}

func (f *fakeDocumentRepo) DeleteChunks(_ context.Context, documentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, documentID)
	return nil
}

type fakeVectorStore struct {
	mu            sync.Mutex
	results       []vectorstore.SearchResult
	searchErr     error
	createErr     error
	lastLimit     int
	lastThreshold float32
	searches      int
	upserts       [][]vectorstore.Chunk
	created       []string
	deletedCols   []string
	deletedDocs   []string
}

func (f *fakeVectorStore) CreateCollection(_ context.Context, namespace string, dimension int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, namespace)
	return nil
}

func (f *fakeVectorStore) DeleteCollection(_ context.Context, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedCols = append(f.deletedCols, namespace)
	return nil
}

func (f *fakeVectorStore) CollectionExists(_ context.Context, namespace string) (bool, error) {
	return true, nil
}

func (f *fakeVectorStore) Upsert(_ context.Context, namespace string, chunks []vectorstore.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, chunks)
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, namespace string, vector []float32, topK int, minScore float32) ([]vectorstore.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	f.lastLimit = topK
	f.lastThreshold = minScore
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := append([]vectorstore.SearchResult{}, f.results...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, namespace string, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDocs = append(f.deletedDocs, documentID)
	return nil
}

func (f *fakeVectorStore) DeleteByIDs(_ context.Context, namespace string, ids []string) error {
	return nil
}

func (f *fakeVectorStore) lastUpsert() []vectorstore.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.upserts) == 0 {
		return nil
	}
	return f.upserts[len(f.upserts)-1]
}

type fakeEmbedder struct {
	mu       sync.Mutex
	lastText string
	embeds   int
	embedErr error
	batchErr error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.lastText = text
	f.embeds++
	f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func (f *fakeEmbedder) embedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embeds
}

type fakeLLM struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
	opts    []llm.GenerateOptions
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.answer != "" {
		return f.answer, nil
	}
	return "Paris is the capital.", nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// fakeReranker reverses the candidates it is given, which makes order
// changes observable without modeling real relevance.
type fakeReranker struct {
	mu          sync.Mutex
	degraded    bool
	err         error
	rerankCalls int
}

func (f *fakeReranker) Rerank(_ context.Context, query string, results []vectorstore.SearchResult, maxResults int) (*reranker.Result, error) {
	f.mu.Lock()
	f.rerankCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	candidates := make([]reranker.ScoredCandidate, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		candidates = append(candidates, reranker.ScoredCandidate{
			SearchResult: results[i],
			Relevance:    0.9,
			Fused:        0.9 - 0.05*float64(len(results)-1-i),
			OriginalRank: i,
		})
	}
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return &reranker.Result{Candidates: candidates, Degraded: f.degraded}, nil
}

func (f *fakeReranker) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rerankCalls
}

// fakeSink buffers events on a channel so tests can assert on emission
// from request goroutines and background workers alike.
type fakeSink struct {
	events chan observability.Event
}

func newFakeSink() *fakeSink {
	return &fakeSink{events: make(chan observability.Event, 64)}
}

func (f *fakeSink) Record(_ context.Context, e observability.Event) {
	select {
	case f.events <- e:
	default:
	}
}

// wait blocks until an event of the given type arrives, discarding
// others along the way.
func (f *fakeSink) wait(t *testing.T, typ observability.EventType) observability.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-f.events:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
			return observability.Event{}
		}
	}
}

// has reports whether a buffered event of the given type exists,
// without blocking. Matching and non-matching events are consumed.
func (f *fakeSink) has(typ observability.EventType) bool {
	for {
		select {
		case e := <-f.events:
			if e.Type == typ {
				return true
			}
		default:
			return false
		}
	}
}

func searchHit(id, content, fileName string, index int, score float32) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:         id,
		DocumentID: "doc-" + id,
		Content:    content,
		ChunkIndex: index,
		FileName:   fileName,
		Score:      score,
	}
}
