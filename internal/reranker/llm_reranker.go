package reranker

import (
	"context"
	"sort"
	"sync"

	"github.com/tkohara/ragchat/internal/vectorstore"
)

// LLMReranker scores every candidate against the query with an LLM and
// re-orders by the fused score. Scoring calls are issued concurrently,
// bounded at the batch size; candidate sets are small (at most 20) so
// the bound doubles as the worker count.
type LLMReranker struct {
	scorer *RelevanceScorer
}

// NewLLMReranker creates a reranker backed by the given scorer.
func NewLLMReranker(scorer *RelevanceScorer) *LLMReranker {
	return &LLMReranker{scorer: scorer}
}

// Rerank re-orders results by fused relevance. It does not fail on
// scoring errors: individual failures score neutral, and a batch-level
// failure such as cancellation mid-flight falls back to the original
// retrieval order with the result marked degraded. Ties preserve
// retrieval order.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []vectorstore.SearchResult, maxResults int) (*Result, error) {
	if len(results) <= 1 {
		return passthrough(results), nil
	}

	scored, degraded := r.scoreAll(ctx, query, results)
	if ctx.Err() != nil {
		// Partial judgments from an interrupted batch are not worth
		// merging; keep the retrieval order instead.
		return fallback(results, maxResults), nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Fused > scored[j].Fused
	})

	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}

	return &Result{Candidates: scored, Degraded: degraded}, nil
}

// scoreAll fans out one scoring call per candidate and gathers the
// judgments by index. The semaphore caps outstanding calls at the
// batch size.
func (r *LLMReranker) scoreAll(ctx context.Context, query string, results []vectorstore.SearchResult) ([]ScoredCandidate, bool) {
	scored := make([]ScoredCandidate, len(results))
	flags := make([]bool, len(results))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, len(results))

	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				scored[idx] = fuse(results[idx], idx, neutralScore)
				flags[idx] = true
				return
			}

			relevance, failed := r.scorer.Score(ctx, query, results[idx].Content)
			scored[idx] = fuse(results[idx], idx, relevance)
			flags[idx] = failed
		}(i)
	}
	wg.Wait()

	degraded := false
	for _, f := range flags {
		if f {
			degraded = true
			break
		}
	}
	return scored, degraded
}

// fuse attaches the relevance judgment and the combined ranking key to
// a search result.
func fuse(sr vectorstore.SearchResult, rank int, relevance float64) ScoredCandidate {
	return ScoredCandidate{
		SearchResult: sr,
		Relevance:    relevance,
		Fused:        RelevanceWeight*relevance + SimilarityWeight*float64(sr.Score),
		OriginalRank: rank,
	}
}

// passthrough wraps zero or one result without any scoring call. The
// fused score degenerates to the similarity score so downstream ranking
// stats stay meaningful.
func passthrough(results []vectorstore.SearchResult) *Result {
	out := &Result{Candidates: make([]ScoredCandidate, 0, len(results))}
	for i, sr := range results {
		out.Candidates = append(out.Candidates, ScoredCandidate{
			SearchResult: sr,
			Fused:        float64(sr.Score),
			OriginalRank: i,
		})
	}
	return out
}

// fallback returns the candidates in retrieval order with neutral
// relevance, truncated to maxResults and marked degraded.
func fallback(results []vectorstore.SearchResult, maxResults int) *Result {
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	out := &Result{Degraded: true, Candidates: make([]ScoredCandidate, 0, len(results))}
	for i, sr := range results {
		out.Candidates = append(out.Candidates, fuse(sr, i, neutralScore))
	}
	return out
}

var _ Reranker = (*LLMReranker)(nil)
