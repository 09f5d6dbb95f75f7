//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package responder

import (
	"fmt"
	"regexp"
	"strings"

	"trpc.group/trpc-go/trpc-botflow-go/knowledge"
	"trpc.group/trpc-go/trpc-botflow-go/session"
)

// referentialPatterns match short follow-ups whose subject lives in prior
// turns ("the address?", "where is it?", "what about pricing?"). Such
// queries are expanded with recent conversation before retrieval so pronouns
// and ellipsis resolve against context.
var referentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(the|that|this|it|its|they|them)\b`),
	regexp.MustCompile(`(?i)^\s*(and|what\s+about|how\s+about|also)\b`),
	regexp.MustCompile(`(?i)^\s*(where|when|who|why|how)\s+(is|was|are|does|do)\s+(it|that|they)\b`),
	regexp.MustCompile(`(?i)^\s*(more|anything\s+else|tell\s+me\s+more)\b`),
}

const (
	shortQueryWordLimit  = 5
	expansionTurnWindow  = 3
	historyMessageWindow = 10
)

// isReferential reports whether the query is a short follow-up that needs
// conversational expansion before retrieval.
func isReferential(query string) bool {
	if len(strings.Fields(query)) > shortQueryWordLimit {
		return false
	}
	for _, pattern := range referentialPatterns {
		if pattern.MatchString(query) {
			return true
		}
	}
	return false
}

// expandQuery prefixes a referential query with the last few user turns so
// the retrieval collaborators see the full subject.
func expandQuery(query string, history []session.Message) string {
	if !isReferential(query) {
		return query
	}
	var prior []string
	for i := len(history) - 1; i >= 0 && len(prior) < expansionTurnWindow; i-- {
		if history[i].Sender == session.SenderUser && strings.TrimSpace(history[i].Content) != "" {
			prior = append([]string{history[i].Content}, prior...)
		}
	}
	if len(prior) == 0 {
		return query
	}
	return strings.Join(prior, " ") + " " + query
}

// buildContext concatenates retrieved snippets into one context block, each
// tagged with its source name.
func buildContext(results []knowledge.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		name := r.SourceName
		if name == "" {
			name = r.SourceID
		}
		fmt.Fprintf(&b, "[Source: %s]\n%s", name, strings.TrimSpace(r.Snippet))
	}
	return b.String()
}

// priorTurns converts the last historyMessageWindow user/bot messages into
// model messages. System messages are never forwarded to the model.
func priorTurns(history []session.Message) []session.Message {
	filtered := make([]session.Message, 0, len(history))
	for _, msg := range history {
		if msg.Sender == session.SenderUser || msg.Sender == session.SenderBot {
			filtered = append(filtered, msg)
		}
	}
	if len(filtered) > historyMessageWindow {
		filtered = filtered[len(filtered)-historyMessageWindow:]
	}
	return filtered
}
