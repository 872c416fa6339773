// Package service implements the business logic behind the API: the
// question-answering pipeline, document ingestion, and account and
// collection management. Services hold no per-request state; every
// operation resolves the caller from the request context and returns
// tagged errdefs errors.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/embedder"
	"github.com/tkohara/ragchat/internal/errdefs"
	"github.com/tkohara/ragchat/internal/guardrails"
	"github.com/tkohara/ragchat/internal/llm"
	"github.com/tkohara/ragchat/internal/memory"
	"github.com/tkohara/ragchat/internal/observability"
	"github.com/tkohara/ragchat/internal/repository"
	"github.com/tkohara/ragchat/internal/reranker"
	"github.com/tkohara/ragchat/internal/tokencount"
	"github.com/tkohara/ragchat/internal/vectorstore"
)

const (
	minTopK = 1
	maxTopK = 20

	// retrievalCap bounds how many candidates one query may pull from
	// the vector store, reranking or not.
	retrievalCap = 20

	// dedupeThreshold is the Jaccard word-set similarity at which two
	// candidates count as the same passage.
	dedupeThreshold = 0.7

	// historyWindow is how many recent messages are folded into the
	// generation prompt.
	historyWindow = 10

	generationTemperature = 0.3
	generationMaxTokens   = 2048
)

// noContextAnswer is returned when retrieval produces nothing usable.
// Generation is skipped entirely on this path.
const noContextAnswer = "I couldn't find relevant information in your knowledge base to answer this question. Please try rephrasing your question or check if the content has been properly uploaded."

const defaultSystemPrompt = `You are a concise knowledge assistant. Answer questions using ONLY the provided context documents.

IMPORTANT: Be brief and direct. Most answers should be 2-5 sentences.

Rules:
- Give the direct answer first, then brief supporting details only if needed
- If the documents don't cover the topic, say "The documents don't cover this."
- Never invent information not in the provided documents`

// Query is one pipeline invocation. Values are fixed for the lifetime
// of the request.
type Query struct {
	Question        string
	CollectionID    uuid.UUID
	SessionID       string
	TopK            int
	ScoreThreshold  float32
	EnableReranking bool
}

// Provenance records one context chunk that backed the answer.
type Provenance struct {
	ChunkID    string  `json:"chunk_id"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// PipelineResult is the outcome of a completed pipeline run.
// Provenance order matches the order chunks were presented to
// generation.
type PipelineResult struct {
	Answer            string       `json:"answer"`
	Provenance        []Provenance `json:"provenance"`
	ContextChunksUsed int          `json:"context_chunks_used"`
	MinScore          float64      `json:"min_score"`
	MaxScore          float64      `json:"max_score"`
	Degraded          bool         `json:"degraded"`
	SessionID         string       `json:"session_id,omitempty"`
	Model             string       `json:"model,omitempty"`
	RetrievalMs       int64        `json:"retrieval_ms"`
	GenerationMs      int64        `json:"generation_ms"`
	TotalMs           int64        `json:"total_ms"`
}

// ChatService runs the retrieval, rerank, guardrail, and generation
// pipeline for one question at a time.
type ChatService struct {
	collections repository.CollectionRepository
	embedder    embedder.Embedder
	vectorDB    vectorstore.VectorStore
	llmClient   llm.LLM
	guard       *guardrails.Engine
	reranker    reranker.Reranker
	memory      memory.ConversationStore
	sink        observability.Sink
	tokens      *tokencount.Counter
	model       string
}

// ChatOption is a functional option for configuring ChatService.
type ChatOption func(*ChatService)

// WithReranker enables reranking for requests that ask for it.
func WithReranker(r reranker.Reranker) ChatOption {
	return func(s *ChatService) {
		s.reranker = r
	}
}

// WithConversationStore enables session history.
func WithConversationStore(store memory.ConversationStore) ChatOption {
	return func(s *ChatService) {
		s.memory = store
	}
}

// WithSink sets the observability sink.
func WithSink(sink observability.Sink) ChatOption {
	return func(s *ChatService) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithModel sets the generation model passed to the LLM client.
func WithModel(model string) ChatOption {
	return func(s *ChatService) {
		s.model = model
	}
}

// NewChatService creates the pipeline service.
func NewChatService(
	collections repository.CollectionRepository,
	embed embedder.Embedder,
	vectorDB vectorstore.VectorStore,
	llmClient llm.LLM,
	guard *guardrails.Engine,
	opts ...ChatOption,
) *ChatService {
	s := &ChatService{
		collections: collections,
		embedder:    embed,
		vectorDB:    vectorDB,
		llmClient:   llmClient,
		guard:       guard,
		sink:        observability.NopSink{},
		tokens:      tokencount.NewCounter(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// rankedChunk pairs a retrieved chunk with the score that ranked it:
// the fused score when reranking ran, the similarity score otherwise.
type rankedChunk struct {
	vectorstore.SearchResult
	score float64
}

// Query runs the pipeline stages in order: parameter validation,
// ownership, question policy, query expansion, retrieval, optional
// rerank, context policy, answer generation, answer policy, and result
// assembly. No stage is retried; the first failure classifies the
// request. A panic anywhere is converted into an internal error at
// this boundary.
func (s *ChatService) Query(ctx context.Context, q Query) (res *PipelineResult, err error) {
	start := time.Now()
	var userID string

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = errdefs.CodeOf(err)
		}
		emitEvent(ctx, s.sink, observability.Event{
			Type:      observability.EventPerformance,
			UserID:    userID,
			SessionID: q.SessionID,
			Fields: map[string]any{
				"duration_ms": time.Since(start).Milliseconds(),
				"outcome":     outcome,
			},
		})
	}()
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = errdefs.E(errdefs.Internal, errdefs.CodeInternal, "unexpected pipeline failure")
			emitEvent(ctx, s.sink, observability.Event{
				Type:      observability.EventPipelineError,
				UserID:    userID,
				SessionID: q.SessionID,
				Fields:    map[string]any{"stage": "pipeline", "panic": fmt.Sprint(r)},
			})
		}
	}()

	if err := validateQuery(q); err != nil {
		return nil, err
	}

	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	userID = identity.UserID.String()

	col, err := s.readyCollection(ctx, identity, q.CollectionID)
	if err != nil {
		return nil, err
	}

	emitEvent(ctx, s.sink, observability.Event{
		Type:      observability.EventQueryReceived,
		UserID:    userID,
		SessionID: q.SessionID,
		Fields: map[string]any{
			"collection_id":  col.ID.String(),
			"question_chars": len(q.Question),
			"top_k":          q.TopK,
			"rerank":         q.EnableReranking,
		},
	})

	if err := s.enforcePolicy(ctx, userID, q.SessionID, q.Question, guardrails.ContentUserQuery); err != nil {
		return nil, err
	}

	expanded := expandQuery(q.Question)

	retrievalStart := time.Now()
	used, degraded, err := s.retrieve(ctx, q, col, expanded)
	if err != nil {
		s.emitPipelineError(ctx, userID, q.SessionID, "retrieval", err)
		return nil, err
	}
	retrievalTime := time.Since(retrievalStart)

	s.emitContextUsage(ctx, userID, q, used, degraded)

	if len(used) == 0 {
		res := &PipelineResult{
			Answer:      noContextAnswer,
			Provenance:  []Provenance{},
			SessionID:   q.SessionID,
			Model:       s.model,
			RetrievalMs: retrievalTime.Milliseconds(),
			TotalMs:     time.Since(start).Milliseconds(),
		}
		s.remember(ctx, identity, q.SessionID, q.Question, res.Answer)
		return res, nil
	}

	contents := make([]string, len(used))
	for i, c := range used {
		contents[i] = c.Content
	}
	contextText := strings.Join(contents, "\n\n")

	if err := s.enforcePolicy(ctx, userID, q.SessionID, contextText, guardrails.ContentContextChunk); err != nil {
		return nil, err
	}

	history := s.recentHistory(ctx, identity, q.SessionID)

	generationStart := time.Now()
	answer, err := s.llmClient.Generate(ctx, buildPrompt(used, q.Question, history), llm.GenerateOptions{
		Model:        s.model,
		SystemPrompt: defaultSystemPrompt,
		Temperature:  generationTemperature,
		MaxTokens:    generationMaxTokens,
	})
	if err != nil {
		err = errdefs.Wrap(err, errdefs.Unavailable, errdefs.CodeProcessingError, "answer generation failed")
		s.emitPipelineError(ctx, userID, q.SessionID, "generation", err)
		return nil, err
	}
	generationTime := time.Since(generationStart)

	if err := s.enforcePolicy(ctx, userID, q.SessionID, answer, guardrails.ContentAIResponse); err != nil {
		return nil, err
	}

	provenance := make([]Provenance, len(used))
	minScore, maxScore := used[0].score, used[0].score
	for i, c := range used {
		provenance[i] = Provenance{
			ChunkID:    c.ID,
			Source:     sourceLabel(c.SearchResult, col),
			ChunkIndex: c.ChunkIndex,
			Score:      c.score,
		}
		if c.score < minScore {
			minScore = c.score
		}
		if c.score > maxScore {
			maxScore = c.score
		}
	}

	s.remember(ctx, identity, q.SessionID, q.Question, answer)

	emitEvent(ctx, s.sink, observability.Event{
		Type:      observability.EventAnswerProduced,
		UserID:    userID,
		SessionID: q.SessionID,
		Fields: map[string]any{
			"model":         s.model,
			"answer_tokens": s.tokens.Count(answer),
			"retrieval_ms":  retrievalTime.Milliseconds(),
			"generation_ms": generationTime.Milliseconds(),
		},
	})

	return &PipelineResult{
		Answer:            answer,
		Provenance:        provenance,
		ContextChunksUsed: len(used),
		MinScore:          minScore,
		MaxScore:          maxScore,
		Degraded:          degraded,
		SessionID:         q.SessionID,
		Model:             s.model,
		RetrievalMs:       retrievalTime.Milliseconds(),
		GenerationMs:      generationTime.Milliseconds(),
		TotalMs:           time.Since(start).Milliseconds(),
	}, nil
}

// History returns the stored conversation for one of the caller's
// sessions, oldest first.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]memory.Message, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "session_id is required")
	}
	if s.memory == nil {
		return nil, nil
	}

	msgs, err := s.memory.History(ctx, sessionKey(identity.UserID, sessionID))
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Unavailable, errdefs.CodeProcessingError, "failed to load history")
	}
	return msgs, nil
}

// ClearHistory erases one of the caller's sessions.
func (s *ChatService) ClearHistory(ctx context.Context, sessionID string) error {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "session_id is required")
	}
	if s.memory == nil {
		return nil
	}

	if err := s.memory.Clear(ctx, sessionKey(identity.UserID, sessionID)); err != nil {
		return errdefs.Wrap(err, errdefs.Unavailable, errdefs.CodeProcessingError, "failed to clear history")
	}
	return nil
}

func validateQuery(q Query) error {
	if strings.TrimSpace(q.Question) == "" {
		return errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "question is required")
	}
	if q.CollectionID == uuid.Nil {
		return errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "collection_id is required")
	}
	if q.TopK < minTopK || q.TopK > maxTopK {
		return errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter,
			fmt.Sprintf("top_k must be between %d and %d", minTopK, maxTopK))
	}
	if q.ScoreThreshold < 0 || q.ScoreThreshold > 1 {
		return errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter,
			"score_threshold must be between 0.0 and 1.0")
	}
	return nil
}

// readyCollection resolves the collection and checks the caller may
// query it. Only a ready collection is queryable.
func (s *ChatService) readyCollection(ctx context.Context, identity *auth.Identity, id uuid.UUID) (*repository.Collection, error) {
	col, err := ownedCollection(ctx, s.collections, identity, id)
	if err != nil {
		return nil, err
	}
	if col.Status != repository.CollectionStatusReady {
		return nil, errdefs.E(errdefs.FailedPrecondition, errdefs.CodeCollectionNotReady,
			fmt.Sprintf("collection is %s, not ready", col.Status)).
			WithDetail("status", col.Status)
	}
	return col, nil
}

// retrieve embeds the expanded query, searches, deduplicates, and
// applies the optional rerank. The returned chunks are at most TopK in
// length and ordered by their ranking score. A reranker error degrades
// to retrieval order; it never fails the query.
func (s *ChatService) retrieve(ctx context.Context, q Query, col *repository.Collection, expanded string) ([]rankedChunk, bool, error) {
	vector, err := s.embedder.Embed(ctx, expanded)
	if err != nil {
		return nil, false, errdefs.Wrap(err, errdefs.Unavailable, errdefs.CodeProcessingError, "failed to embed query")
	}

	rerankWanted := q.EnableReranking && s.reranker != nil
	limit := q.TopK
	if rerankWanted {
		limit = q.TopK * 2
		if limit > retrievalCap {
			limit = retrievalCap
		}
	}

	results, err := s.vectorDB.Search(ctx, col.VectorNamespace, vector, limit, q.ScoreThreshold)
	if err != nil {
		return nil, false, errdefs.Wrap(err, errdefs.Unavailable, errdefs.CodeProcessingError, "similarity search failed")
	}

	results = deduplicateResults(results, dedupeThreshold)

	if rerankWanted && len(results) > 1 {
		if rr, rerr := s.reranker.Rerank(ctx, q.Question, results, q.TopK); rerr == nil && rr != nil {
			ranked := make([]rankedChunk, len(rr.Candidates))
			for i, c := range rr.Candidates {
				ranked[i] = rankedChunk{SearchResult: c.SearchResult, score: c.Fused}
			}
			return ranked, rr.Degraded, nil
		}
		if len(results) > q.TopK {
			results = results[:q.TopK]
		}
		return similarityRanked(results), true, nil
	}

	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return similarityRanked(results), false, nil
}

func similarityRanked(results []vectorstore.SearchResult) []rankedChunk {
	ranked := make([]rankedChunk, len(results))
	for i, r := range results {
		ranked[i] = rankedChunk{SearchResult: r, score: float64(r.Score)}
	}
	return ranked
}

// enforcePolicy gates one pipeline stage on the policy engine,
// emitting the violation detail before returning the error.
func (s *ChatService) enforcePolicy(ctx context.Context, userID, sessionID, text string, contentType guardrails.ContentType) error {
	err := s.guard.Enforce(text, contentType)
	if err == nil {
		return nil
	}

	emitEvent(ctx, s.sink, observability.Event{
		Type:      observability.EventPolicyViolation,
		UserID:    userID,
		SessionID: sessionID,
		Fields: map[string]any{
			"content_type": string(contentType),
			"violations":   errdefs.DetailsOf(err)["violations"],
		},
	})
	return err
}

func (s *ChatService) emitPipelineError(ctx context.Context, userID, sessionID, stage string, err error) {
	emitEvent(ctx, s.sink, observability.Event{
		Type:      observability.EventPipelineError,
		UserID:    userID,
		SessionID: sessionID,
		Fields:    map[string]any{"stage": stage, "error": err.Error()},
	})
}

func (s *ChatService) emitContextUsage(ctx context.Context, userID string, q Query, used []rankedChunk, degraded bool) {
	contextChars := 0
	for _, c := range used {
		contextChars += len(c.Content)
	}

	emitEvent(ctx, s.sink, observability.Event{
		Type:      observability.EventContextUsage,
		UserID:    userID,
		SessionID: q.SessionID,
		Fields: map[string]any{
			"chunks_used":   len(used),
			"context_chars": contextChars,
			"rerank":        q.EnableReranking,
			"degraded":      degraded,
		},
	})
}

// recentHistory loads the conversation window for the prompt. Memory
// failures are absorbed; a lost history never fails the question.
func (s *ChatService) recentHistory(ctx context.Context, identity *auth.Identity, sessionID string) []memory.Message {
	if sessionID == "" || s.memory == nil {
		return nil
	}

	msgs, err := s.memory.History(ctx, sessionKey(identity.UserID, sessionID))
	if err != nil {
		return nil
	}
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	return msgs
}

// remember appends the exchange to session memory. Append failures are
// absorbed for the same reason history loads are.
func (s *ChatService) remember(ctx context.Context, identity *auth.Identity, sessionID, question, answer string) {
	if sessionID == "" || s.memory == nil {
		return
	}

	key := sessionKey(identity.UserID, sessionID)
	now := time.Now()
	_ = s.memory.Append(ctx, key, memory.Message{Role: memory.RoleUser, Content: question, CreatedAt: now})
	_ = s.memory.Append(ctx, key, memory.Message{Role: memory.RoleAssistant, Content: answer, CreatedAt: now})
}

// sessionKey scopes conversation storage per user; a session ID only
// ever resolves within its owner's namespace.
func sessionKey(userID uuid.UUID, sessionID string) string {
	return userID.String() + ":" + sessionID
}

// sourceLabel names where a chunk came from: the uploaded file when
// known, else the collection.
func sourceLabel(r vectorstore.SearchResult, col *repository.Collection) string {
	if r.FileName != "" {
		return r.FileName
	}
	return col.Name
}

// buildPrompt lays out history, context documents, and the question.
// The question is the original one; expansion only widens retrieval.
func buildPrompt(chunks []rankedChunk, question string, history []memory.Message) string {
	var sb strings.Builder

	if len(history) > 0 {
		sb.WriteString("## Conversation History\n\n")
		for _, msg := range history {
			sb.WriteString(msg.Role)
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Context Documents\n\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "[Doc %d]", i+1)
		if chunk.FileName != "" {
			fmt.Fprintf(&sb, " (Source: %s)", chunk.FileName)
		}
		sb.WriteString("\n")
		sb.WriteString(chunk.Content)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n\n")

	sb.WriteString("## Answer (be brief and direct)\n")

	return sb.String()
}

// deduplicateResults drops candidates whose word sets overlap an
// earlier candidate beyond the threshold. Retrieval order is
// similarity-descending, so the survivor of a near-duplicate pair is
// always the better scored one.
func deduplicateResults(results []vectorstore.SearchResult, threshold float64) []vectorstore.SearchResult {
	if len(results) <= 1 {
		return results
	}

	wordSets := make([]map[string]struct{}, len(results))
	for i, r := range results {
		wordSets[i] = wordSet(r.Content)
	}

	deduplicated := make([]vectorstore.SearchResult, 0, len(results))
	kept := make([]int, 0, len(results))
	for i, r := range results {
		duplicate := false
		for _, j := range kept {
			if jaccard(wordSets[j], wordSets[i]) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			deduplicated = append(deduplicated, r)
			kept = append(kept, i)
		}
	}

	return deduplicated
}

// wordSet lowercases content into a set of words longer than two
// characters, with edge punctuation trimmed.
func wordSet(content string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(content))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]{}<>")
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

// jaccard is intersection over union of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection

	return float64(intersection) / float64(union)
}

// emitEvent stamps and records one event. Recording is fire-and-forget;
// a sink must never fail the operation that produced the event.
func emitEvent(ctx context.Context, sink observability.Sink, e observability.Event) {
	if sink == nil {
		return
	}
	e.Time = time.Now()
	sink.Record(ctx, e)
}

// ownedCollection loads a collection and verifies the caller owns it.
func ownedCollection(ctx context.Context, repo repository.CollectionRepository, identity *auth.Identity, id uuid.UUID) (*repository.Collection, error) {
	col, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errdefs.E(errdefs.NotFound, errdefs.CodeNotFound, "collection not found")
		}
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to load collection")
	}
	if col.OwnerID != identity.UserID {
		return nil, errdefs.E(errdefs.Forbidden, errdefs.CodeForbidden, "collection belongs to another user")
	}
	return col, nil
}
