//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package knowledge defines the retrieval collaborator contract consumed by
// the response generation pipeline. The indexed-document knowledge base and
// the scraped-web cache both implement Searcher; indexing itself is owned by
// the collaborators and is out of scope here.
package knowledge

import "context"

// Result is one retrieved snippet. Results are transient, per-turn values;
// they survive only inside message metadata as retrieval provenance.
type Result struct {
	// SourceID identifies the document or page the snippet came from.
	SourceID string `json:"sourceId"`
	// SourceName is the human-readable source title used to tag context.
	SourceName string `json:"sourceName"`
	// Snippet is the relevant text fragment.
	Snippet string `json:"snippet"`
	// Score is the relevance score, higher is better.
	Score float64 `json:"score"`
}

// Searcher is the read-only retrieval contract.
type Searcher interface {
	// Search returns up to topK results relevant to the query, ordered by
	// descending score. An empty result set means nothing relevant exists;
	// it is not an error.
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}
