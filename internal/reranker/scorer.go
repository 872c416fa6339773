package reranker

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/tkohara/ragchat/internal/llm"
)

const (
	// maxPassageChars caps how much of a chunk is shown to the scoring
	// model. Longer passages are truncated with an ellipsis; relevance
	// is judged well enough from the head of the chunk.
	maxPassageChars = 500

	// neutralScore is returned when a judgment cannot be obtained.
	// Neutral keeps failed candidates rankable by similarity alone
	// instead of sinking or floating them.
	neutralScore = 0.5

	scorerSystemPrompt = "You are a relevance scorer. Rate how well the context answers the query on a scale of 0-10. Respond with only a number."

	// Short deterministic completions: a score needs a couple of
	// tokens, and low temperature keeps repeated judgments stable.
	scorerMaxTokens   = 10
	scorerTemperature = 0.1
)

// scoreRe matches the first number in a model response, e.g. "8",
// "7.5", or the 9 in "Score: 9".
var scoreRe = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// RelevanceScorer asks an LLM to judge how well a passage answers a
// query. It never returns an error: failures yield a neutral score and
// a degraded flag so a single bad call cannot abort a batch.
type RelevanceScorer struct {
	llmClient llm.LLM
	model     string
}

// ScorerOption configures a RelevanceScorer.
type ScorerOption func(*RelevanceScorer)

// WithScorerModel sets the model used for relevance judgments.
func WithScorerModel(model string) ScorerOption {
	return func(s *RelevanceScorer) {
		s.model = model
	}
}

// NewRelevanceScorer creates a scorer backed by the given LLM client.
func NewRelevanceScorer(llmClient llm.LLM, opts ...ScorerOption) *RelevanceScorer {
	s := &RelevanceScorer{
		llmClient: llmClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the passage's relevance to the query, normalized to
// [0,1]. The second return value is true when the judgment failed and
// the neutral fallback was used.
func (s *RelevanceScorer) Score(ctx context.Context, query, passage string) (float64, bool) {
	prompt := buildScorePrompt(query, passage)

	response, err := s.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
		Model:        s.model,
		SystemPrompt: scorerSystemPrompt,
		Temperature:  scorerTemperature,
		MaxTokens:    scorerMaxTokens,
	})
	if err != nil {
		return neutralScore, true
	}

	return parseScore(response) / 10.0, false
}

func buildScorePrompt(query, passage string) string {
	if len(passage) > maxPassageChars {
		passage = passage[:maxPassageChars] + "..."
	}
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nContext: ")
	b.WriteString(passage)
	b.WriteString("\n\nHow relevant is this context to answering the query? Score 0-10:")
	return b.String()
}

// parseScore extracts a 0-10 score from a model response. Numeric
// content wins; otherwise a coarse lexical read of the response decides
// between a moderately-relevant and a weak default. Out-of-range values
// are clamped.
func parseScore(response string) float64 {
	if m := scoreRe.FindString(response); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return clampScore(v)
		}
	}

	lower := strings.ToLower(response)
	if strings.Contains(lower, "relevant") || strings.Contains(lower, "good") || strings.Contains(lower, "yes") {
		return 7.0
	}
	return 3.0
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
