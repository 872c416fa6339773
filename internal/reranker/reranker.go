// Package reranker provides re-ranking capabilities for RAG retrieval results.
//
// Re-ranking asks an LLM to judge how well each retrieved chunk answers
// the query, then fuses that judgment with the original vector similarity
// score. Scoring each chunk independently keeps one bad call from
// poisoning the batch: a failed judgment falls back to a neutral score
// and the result is flagged as degraded instead of erroring out.
//
// # Trade-offs
//
// Reranking is a per-request option (enable_reranking on the chat request).
//
//   - Latency: Adds an LLM call per candidate (issued concurrently)
//   - Quality: Noticeably better ordering when top-k vector scores bunch together
//   - Cost: One short completion per candidate per query
//
// Enable reranking for use cases where accuracy matters more than speed.
// Disable for high-throughput or latency-sensitive applications.
package reranker

import (
	"context"

	"github.com/tkohara/ragchat/internal/vectorstore"
)

// Fusion weights for combining the LLM relevance judgment with the
// vector similarity score. The LLM judgment dominates; similarity acts
// as a stabilizer when judgments are noisy.
const (
	RelevanceWeight  = 0.7
	SimilarityWeight = 0.3
)

// ScoredCandidate is a search result with reranking scores attached.
type ScoredCandidate struct {
	vectorstore.SearchResult

	// Relevance is the LLM judgment normalized to [0,1].
	Relevance float64

	// Fused is the final ranking key:
	// RelevanceWeight*Relevance + SimilarityWeight*Score.
	Fused float64

	// OriginalRank is the candidate's position in the retrieval
	// ordering, before reranking.
	OriginalRank int
}

// Result is the outcome of one rerank call.
type Result struct {
	Candidates []ScoredCandidate

	// Degraded is true when at least one relevance score came from the
	// failure fallback, or the whole batch fell back to retrieval
	// order. Callers can use it to tell a fully-scored ranking from a
	// fallback-heavy one.
	Degraded bool
}

// Reranker defines the interface for re-ranking search results.
type Reranker interface {
	// Rerank takes a query and search results, and returns them
	// re-ordered by relevance. The maxResults parameter limits the
	// output length. Implementations must not fabricate, duplicate, or
	// mutate candidates: the output is always a subsequence of the
	// input.
	Rerank(ctx context.Context, query string, results []vectorstore.SearchResult, maxResults int) (*Result, error)
}
