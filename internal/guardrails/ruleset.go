package guardrails

import "regexp"

// Severity classifies how serious a violation is. Ordering matters:
// higher values are more severe.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the severity name used in logs and API responses.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ViolationKind identifies which detector produced a violation.
type ViolationKind string

const (
	ToxicContent     ViolationKind = "TOXIC_CONTENT"
	Threat           ViolationKind = "THREAT"
	ConfidentialData ViolationKind = "CONFIDENTIAL_DATA"
	OrgConfidential  ViolationKind = "ORG_CONFIDENTIAL"
)

// ContentType tells the engine what stage of the pipeline the text came
// from. Detection is identical for every type; the type travels with the
// violation report so call sites can tell which stage tripped.
type ContentType string

const (
	ContentUserQuery       ContentType = "USER_QUERY"
	ContentAIResponse      ContentType = "AI_RESPONSE"
	ContentContextChunk    ContentType = "CONTEXT_CHUNK"
	ContentKnowledgeUpload ContentType = "KNOWLEDGE_UPLOAD"
)

// PatternRule is one named detection pattern.
type PatternRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Ruleset holds the compiled detection tables. It is immutable after
// construction and safe for concurrent use; build one at startup and
// share it across the process.
type Ruleset struct {
	toxicWords   []string
	threat       *regexp.Regexp
	confidential []PatternRule
	organization []PatternRule
	redaction    string
}

// DefaultRuleset builds the standard detection tables.
func DefaultRuleset() *Ruleset {
	return &Ruleset{
		toxicWords: []string{
			// Profanity
			"fuck", "shit", "damn", "bitch", "asshole", "bastard",
			// Hate speech indicators
			"hate", "kill", "murder", "terrorist", "nazi", "fascist",
			// Discriminatory terms
			"retard", "faggot", "nigger", "chink", "spic",
			// Threats
			"bomb", "explosion", "attack", "violence", "harm",
		},
		threat: regexp.MustCompile(`\b(kill|murder|harm)\s+(you|yourself|me|us)\b`),
		confidential: []PatternRule{
			{Name: "SSN", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9}\b`)},
			{Name: "CREDIT_CARD", Pattern: regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`)},
			{Name: "EMAIL", Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{Name: "PHONE", Pattern: regexp.MustCompile(`\b\(?\d{3}\)?[- ]?\d{3}[- ]?\d{4}\b`)},
			{Name: "IP_ADDRESS", Pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
			{Name: "API_KEY", Pattern: regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`)},
			{Name: "PASSWORD", Pattern: regexp.MustCompile(`(?i)password[\s:=]+[\w!@#$%^&*()]+`)},
		},
		organization: []PatternRule{
			{Name: "EMPLOYEE_ID", Pattern: regexp.MustCompile(`\bEMP\d{6}\b`)},
			{Name: "CUSTOMER_ID", Pattern: regexp.MustCompile(`\bCUST\d{8}\b`)},
			{Name: "INTERNAL_CODE", Pattern: regexp.MustCompile(`\b[A-Z]{3}-\d{4}-[A-Z]{2}\b`)},
		},
		redaction: "[REDACTED]",
	}
}

// RedactionToken returns the marker substituted for confidential spans.
func (r *Ruleset) RedactionToken() string {
	return r.redaction
}
