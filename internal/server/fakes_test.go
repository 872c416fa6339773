package server

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tkohara/ragchat/internal/llm"
	"github.com/tkohara/ragchat/internal/repository"
	"github.com/tkohara/ragchat/internal/vectorstore"
)

// Map-backed fakes for everything behind the HTTP surface. They return
// copies so handlers cannot mutate stored state, and take a lock because
// document ingestion keeps writing after the upload response is sent.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*repository.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*repository.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *repository.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByAPIKeyHash(ctx context.Context, keyHash string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.APIKeyHash == keyHash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) Update(ctx context.Context, user *repository.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) UpdateAPIKeyHash(ctx context.Context, id uuid.UUID, keyHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.APIKeyHash = keyHash
	return nil
}

func (r *fakeUserRepo) Stats(ctx context.Context, id uuid.UUID) (*repository.UserStats, error) {
	return &repository.UserStats{CollectionCount: 1, DocumentCount: 2, ChunkCount: 40}, nil
}

type fakeCollectionRepo struct {
	mu   sync.Mutex
	cols map[uuid.UUID]*repository.Collection
}

func newFakeCollectionRepo() *fakeCollectionRepo {
	return &fakeCollectionRepo{cols: make(map[uuid.UUID]*repository.Collection)}
}

func (r *fakeCollectionRepo) Create(ctx context.Context, col *repository.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cols {
		if c.OwnerID == col.OwnerID && c.Name == col.Name {
			return repository.ErrDuplicate
		}
	}
	cp := *col
	r.cols[col.ID] = &cp
	return nil
}

func (r *fakeCollectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cols[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCollectionRepo) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*repository.Collection, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.Collection
	for _, c := range r.cols {
		if c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *fakeCollectionRepo) Update(ctx context.Context, col *repository.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cols[col.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *col
	r.cols[col.ID] = &cp
	return nil
}

func (r *fakeCollectionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cols[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *fakeCollectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cols, id)
	return nil
}

type fakeDocumentRepo struct {
	mu     sync.Mutex
	docs   map[uuid.UUID]*repository.Document
	chunks map[uuid.UUID][]*repository.DocumentChunk
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		docs:   make(map[uuid.UUID]*repository.Document),
		chunks: make(map[uuid.UUID][]*repository.DocumentChunk),
	}
}

func (r *fakeDocumentRepo) Create(ctx context.Context, doc *repository.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.CollectionID == doc.CollectionID && d.SHA256 == doc.SHA256 {
			return repository.ErrDuplicate
		}
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDocumentRepo) GetBySHA256(ctx context.Context, collectionID uuid.UUID, hash string) (*repository.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.CollectionID == collectionID && d.SHA256 == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeDocumentRepo) List(ctx context.Context, collectionID uuid.UUID, status string, limit, offset int) ([]*repository.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.Document
	for _, d := range r.docs {
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

func (r *fakeDocumentRepo) Update(ctx context.Context, doc *repository.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

func (r *fakeDocumentRepo) CreateChunks(ctx context.Context, chunks []*repository.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range chunks {
		cp := *c
		r.chunks[c.DocumentID] = append(r.chunks[c.DocumentID], &cp)
	}
	return nil
}

func (r *fakeDocumentRepo) GetChunks(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*repository.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.DocumentChunk
	for _, c := range r.chunks[documentID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeDocumentRepo) DeleteChunks(ctx context.Context, documentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, documentID)
	return nil
}

type fakeVectorStore struct {
	mu            sync.Mutex
	results       []vectorstore.SearchResult
	lastLimit     int
	lastThreshold float32
}

func (f *fakeVectorStore) CreateCollection(ctx context.Context, namespace string, dimension int) error {
	return nil
}

func (f *fakeVectorStore) DeleteCollection(ctx context.Context, namespace string) error {
	return nil
}

func (f *fakeVectorStore) CollectionExists(ctx context.Context, namespace string) (bool, error) {
	return true, nil
}

func (f *fakeVectorStore) Upsert(ctx context.Context, namespace string, chunks []vectorstore.Chunk) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, namespace string, vector []float32, topK int, minScore float32) ([]vectorstore.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = topK
	f.lastThreshold = minScore
	return f.results, nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, namespace string, documentID string) error {
	return nil
}

func (f *fakeVectorStore) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	return nil
}

func (f *fakeVectorStore) searchParams() (int, float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLimit, f.lastThreshold
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }

type fakeLLM struct{}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return "Generated answer.", nil
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	err     error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowed, f.err
}

func (f *fakeLimiter) set(allowed bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed = allowed
	f.err = err
}
