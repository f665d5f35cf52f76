// Package classify implements the deterministic, dependency-free heuristics
// that assign a MemoryType and importance score to a memory's content when
// the caller does not supply one. Both functions are pure and safe to call
// without holding the engine's locks.
package classify

import (
	"strings"

	"github.com/vaultmind/memcore/pkg/types"
)

var typeKeywords = []struct {
	t        types.MemoryType
	keywords []string
}{
	{types.TypeTask, []string{"task", "todo", "deadline", "meeting", "complete", "action", "finish"}},
	{types.TypePreference, []string{"prefer", "like", "favorite", "enjoy", "dislike"}},
	{types.TypeEmotion, []string{"feel", "felt", "happy", "sad", "angry", "excited", "love", "hate"}},
	{types.TypeProcedure, []string{"step", "procedure", "method", "how to", "process"}},
	{types.TypePersonality, []string{"personality", "behavior", "style", "calm", "patient"}},
	{types.TypeFact, []string{"is", "are", "was", "were", "always", "never"}},
}

var importanceBoostWords = []string{"password", "secret", "key", "token", "critical", "urgent"}
var importanceModerateWords = []string{"deadline", "remember", "always", "never"}
var importanceDampenWords = []string{"okay", "fine", "nice", "weather", "good"}

// Classify assigns a MemoryType from fixed, case-insensitive keyword
// families, in priority order. Content matching none of the families
// classifies as thread.
func Classify(content string) types.MemoryType {
	normalized := normalize(content)
	for _, family := range typeKeywords {
		if hasAnyWord(normalized, family.keywords) {
			return family.t
		}
	}
	return types.TypeThread
}

// Score computes a deterministic importance in [0.1, 1.0] from fixed
// keyword-density heuristics over the content.
func Score(content string) float64 {
	normalized := normalize(content)
	tokens := strings.Fields(normalized)

	score := 0.5

	if hasAnyWord(normalized, importanceBoostWords) {
		score += 0.3
	}
	if hasAnyWord(normalized, importanceModerateWords) {
		score += 0.2
	}
	if len(content) > 200 {
		score += 0.1
	}
	if len(tokens) > 0 {
		dampenCount := 0
		for _, tok := range tokens {
			if inList(tok, importanceDampenWords) {
				dampenCount++
			}
		}
		if float64(dampenCount)/float64(len(tokens)) >= 0.15 {
			score -= 0.2
		}
	}

	return clamp(score, 0.1, 1.0)
}

// normalize lowercases content and strips punctuation down to bare words
// separated by single spaces, with sentinel spaces at both ends so a
// substring search for " word " is a true whole-word match.
func normalize(content string) string {
	lower := strings.ToLower(content)
	var b strings.Builder
	b.WriteByte(' ')
	lastWasSpace := true
	for _, r := range lower {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		switch {
		case isWord:
			b.WriteRune(r)
			lastWasSpace = false
		case !lastWasSpace:
			b.WriteByte(' ')
			lastWasSpace = true
		}
	}
	if !lastWasSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

// hasAnyWord reports whether any keyword (word or multi-word phrase) occurs
// as a whole-word match within normalized, which must itself be the output
// of normalize.
func hasAnyWord(normalized string, keywords []string) bool {
	for _, kw := range keywords {
		needle := " " + strings.ReplaceAll(kw, " ", " ") + " "
		if strings.Contains(normalized, needle) {
			return true
		}
	}
	return false
}

func inList(tok string, list []string) bool {
	for _, l := range list {
		if tok == l {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
