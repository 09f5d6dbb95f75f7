//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"trpc.group/trpc-go/trpc-botflow-go/flow"
)

// Lightweight NLU for the pass-through analysis nodes. Keyword and lexicon
// based; these run on every turn and never make a model call.

// matchIntent returns the first intent whose phrase appears in the input, or
// "unknown" when nothing matches.
func matchIntent(input string, intents []flow.Intent) string {
	lowered := strings.ToLower(input)
	for _, intent := range intents {
		for _, phrase := range intent.Phrases {
			if phrase != "" && strings.Contains(lowered, strings.ToLower(phrase)) {
				return intent.Name
			}
		}
	}
	return "unknown"
}

var (
	entityEmailRe  = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)
	entityPhoneRe  = regexp.MustCompile(`\+?\d[\d\s().-]{5,}\d`)
	entityNumberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)
)

// extractEntities pulls well-known entities out of free text.
func extractEntities(input string) map[string]string {
	entities := make(map[string]string)
	if m := entityEmailRe.FindString(input); m != "" {
		entities["email"] = m
	}
	if m := entityPhoneRe.FindString(input); m != "" {
		if normalized, ok := validatePhone(m); ok {
			entities["phone"] = normalized
		}
	}
	if _, hasEmail := entities["email"]; !hasEmail {
		if m := entityNumberRe.FindString(input); m != "" {
			entities["number"] = m
		}
	}
	return entities
}

var positiveWords = []string{
	"great", "good", "awesome", "excellent", "love", "perfect", "thanks",
	"thank", "amazing", "happy", "wonderful", "nice", "helpful",
}

var negativeWords = []string{
	"bad", "terrible", "awful", "hate", "angry", "useless", "broken",
	"worst", "disappointed", "frustrated", "slow", "wrong", "problem",
}

// scoreSentiment classifies input as positive, negative or neutral from a
// small word lexicon.
func scoreSentiment(input string) string {
	lowered := strings.ToLower(input)
	score := 0
	for _, w := range positiveWords {
		if strings.Contains(lowered, w) {
			score++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lowered, w) {
			score--
		}
	}
	switch {
	case score > 0:
		return "positive"
	case score < 0:
		return "negative"
	default:
		return "neutral"
	}
}

// matchLanguage resolves the session language against the node's supported
// set. The candidate tag comes from an explicit variable, then the channel
// locale; unparseable or unsupported tags resolve to the first supported
// language, or "en" when the node declares none.
func matchLanguage(candidate string, supported []string) string {
	if len(supported) == 0 {
		supported = []string{"en"}
	}
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		if tag, err := language.Parse(s); err == nil {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return "en"
	}
	matcher := language.NewMatcher(tags)
	desired, err := language.Parse(strings.TrimSpace(candidate))
	if err != nil {
		return supported[0]
	}
	_, idx, conf := matcher.Match(desired)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}
