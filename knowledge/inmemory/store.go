//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides a keyword-overlap Searcher implementation. It
// serves small bots without a vector index and doubles as the test double
// for the retrieval contract.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"trpc.group/trpc-go/trpc-botflow-go/knowledge"
)

var _ knowledge.Searcher = (*Store)(nil)

// Document is one indexed text unit.
type Document struct {
	ID      string
	Name    string
	Content string
}

// Store is a mutex-guarded in-memory document index scored by token overlap.
type Store struct {
	mu       sync.RWMutex
	docs     []Document
	minScore float64
}

// Option configures the store.
type Option func(*Store)

// WithMinScore sets the relevance cutoff below which documents are dropped
// from results. The default is 0.1.
func WithMinScore(score float64) Option {
	return func(s *Store) {
		s.minScore = score
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{minScore: 0.1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add indexes documents. Safe for concurrent use with Search.
func (s *Store) Add(docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
}

// Search implements knowledge.Searcher. Documents are scored by the fraction
// of query tokens they contain, with a small bonus for exact phrase hits.
func (s *Store) Search(_ context.Context, query string, topK int) ([]knowledge.Result, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 || topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]knowledge.Result, 0, len(s.docs))
	loweredQuery := strings.ToLower(strings.TrimSpace(query))
	for _, doc := range s.docs {
		lowered := strings.ToLower(doc.Content)
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(lowered, tok) {
				matched++
			}
		}
		score := float64(matched) / float64(len(tokens))
		if loweredQuery != "" && strings.Contains(lowered, loweredQuery) {
			score += 0.25
		}
		if score < s.minScore {
			continue
		}
		scored = append(scored, knowledge.Result{
			SourceID:   doc.ID,
			SourceName: doc.Name,
			Snippet:    snippet(doc.Content),
			Score:      score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

const maxSnippetLen = 600

// snippet truncates document content to a bounded context fragment.
func snippet(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= maxSnippetLen {
		return content
	}
	cut := content[:maxSnippetLen]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}

// tokenize lower-cases and splits a query, dropping single-rune noise.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
