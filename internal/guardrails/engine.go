// Package guardrails provides rule-based content policy enforcement for
// the query pipeline.
//
// The engine runs three independent detectors over a text blob: a toxic
// word and threat-phrase check, a confidential-data pattern table (SSNs,
// credit cards, emails, and similar), and an organization-specific
// identifier table. Detection is deterministic pattern matching, not a
// classifier; the goal is a cheap, predictable gate applied to user
// queries, retrieved context, generated answers, and uploaded content.
//
// Confidential matches can be redacted; toxic and threatening content is
// reported but never masked, so callers block the request instead of
// forwarding a partially cleaned version.
package guardrails

import (
	"fmt"
	"strings"

	"github.com/tkohara/ragchat/internal/errdefs"
)

// Violation is a single detected policy breach.
type Violation struct {
	Kind        ViolationKind
	Pattern     string
	Description string
	Severity    Severity
}

// ValidationResult reports the outcome of validating one text blob.
// Valid is true exactly when Violations is empty. Sanitized carries a
// copy of the input with all confidential spans redacted; it equals the
// input when nothing matched a redactable pattern.
type ValidationResult struct {
	Valid      bool
	Violations []Violation
	Sanitized  string
}

// Engine validates text against an immutable Ruleset.
type Engine struct {
	rules *Ruleset
}

// NewEngine creates a policy engine. A nil ruleset selects the default
// tables.
func NewEngine(rules *Ruleset) *Engine {
	if rules == nil {
		rules = DefaultRuleset()
	}
	return &Engine{rules: rules}
}

// Validate runs all detectors over text and returns the unioned result.
// The contentType does not change what is detected; it is carried into
// the violation report so callers know which pipeline stage tripped.
func (e *Engine) Validate(text string, contentType ContentType) ValidationResult {
	var violations []Violation

	violations = append(violations, e.detectToxic(text)...)
	violations = append(violations, e.detectConfidential(text)...)
	violations = append(violations, e.detectOrganization(text)...)

	return ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
		Sanitized:  e.sanitize(text, violations),
	}
}

// Enforce validates text and converts any violation into a policy error.
// The error message carries a "KIND:pattern" summary for every violation;
// the full list rides along as structured detail. Callers must stop
// processing the content when Enforce fails.
func (e *Engine) Enforce(text string, contentType ContentType) error {
	result := e.Validate(text, contentType)
	if result.Valid {
		return nil
	}

	pairs := make([]string, len(result.Violations))
	for i, v := range result.Violations {
		pairs[i] = fmt.Sprintf("%s:%s", v.Kind, v.Pattern)
	}
	summary := strings.Join(pairs, ", ")

	return errdefs.E(errdefs.PolicyViolation, errdefs.CodePolicyViolation,
		"content policy violation: "+summary).
		WithDetail("violations", pairs).
		WithDetail("content_type", string(contentType))
}

// Sanitize returns text with every confidential and organization pattern
// match replaced by the redaction token. Toxic content is left in place.
// Sanitizing already-sanitized text is a no-op.
func (e *Engine) Sanitize(text string) string {
	violations := append(e.detectConfidential(text), e.detectOrganization(text)...)
	return e.sanitize(text, violations)
}

// detectToxic finds toxic vocabulary and threat phrases. One violation
// per distinct matched word, plus at most one threat-pattern violation.
func (e *Engine) detectToxic(text string) []Violation {
	var violations []Violation
	lower := strings.ToLower(text)

	for _, word := range e.rules.toxicWords {
		if strings.Contains(lower, word) {
			violations = append(violations, Violation{
				Kind:        ToxicContent,
				Pattern:     word,
				Description: "toxic language detected",
				Severity:    SeverityHigh,
			})
		}
	}

	if e.rules.threat.MatchString(lower) {
		violations = append(violations, Violation{
			Kind:        Threat,
			Pattern:     "threat_pattern",
			Description: "threatening language detected",
			Severity:    SeverityCritical,
		})
	}

	return violations
}

// detectConfidential reports one violation per pattern name that matches,
// regardless of how many times it matches.
func (e *Engine) detectConfidential(text string) []Violation {
	var violations []Violation

	for _, rule := range e.rules.confidential {
		if rule.Pattern.MatchString(text) {
			violations = append(violations, Violation{
				Kind:        ConfidentialData,
				Pattern:     rule.Name,
				Description: "confidential data pattern detected: " + rule.Name,
				Severity:    SeverityHigh,
			})
		}
	}

	return violations
}

func (e *Engine) detectOrganization(text string) []Violation {
	var violations []Violation

	for _, rule := range e.rules.organization {
		if rule.Pattern.MatchString(text) {
			violations = append(violations, Violation{
				Kind:        OrgConfidential,
				Pattern:     rule.Name,
				Description: "organization confidential pattern detected: " + rule.Name,
				Severity:    SeverityMedium,
			})
		}
	}

	return violations
}

// sanitize redacts every match of the patterns named by the redactable
// violations. Toxic and threat violations carry no pattern to redact.
func (e *Engine) sanitize(text string, violations []Violation) string {
	sanitized := text

	for _, v := range violations {
		if v.Kind != ConfidentialData && v.Kind != OrgConfidential {
			continue
		}
		if rule, ok := e.lookupRule(v.Pattern); ok {
			sanitized = rule.Pattern.ReplaceAllString(sanitized, e.rules.redaction)
		}
	}

	return sanitized
}

func (e *Engine) lookupRule(name string) (PatternRule, bool) {
	for _, rule := range e.rules.confidential {
		if rule.Name == name {
			return rule, true
		}
	}
	for _, rule := range e.rules.organization {
		if rule.Name == name {
			return rule, true
		}
	}
	return PatternRule{}, false
}
