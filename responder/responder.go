//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package responder implements the guarded response generation pipeline for
// AI-backed nodes: multi-source context retrieval, the no-ungrounded-answer
// guard, prompt assembly, model invocation and output sanitization.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-botflow-go/config"
	"trpc.group/trpc-go/trpc-botflow-go/knowledge"
	"trpc.group/trpc-go/trpc-botflow-go/log"
	"trpc.group/trpc-go/trpc-botflow-go/model"
	"trpc.group/trpc-go/trpc-botflow-go/model/openai"
	"trpc.group/trpc-go/trpc-botflow-go/session"
)

// Default generation bounds, overridable per bot and per ai_response node.
const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 500
	defaultTopK        = 3
	defaultPoolSize    = 8
)

// ErrModelRequired is returned by New when no model is configured.
var ErrModelRequired = errors.New("responder: model is required")

// Responder is the response generation pipeline. It is safe for concurrent
// use across sessions.
type Responder struct {
	knowledgeBase knowledge.Searcher
	webCache      knowledge.Searcher
	chatModel     model.Model
	fallback      *Fallback
	companyName   string
	temperature   float64
	maxTokens     int
	topK          int
	pool          *ants.Pool
}

// Option configures the Responder.
type Option func(*Responder)

// WithKnowledgeBase sets the indexed-document retrieval collaborator.
func WithKnowledgeBase(s knowledge.Searcher) Option {
	return func(r *Responder) {
		r.knowledgeBase = s
	}
}

// WithWebCache sets the scraped-web retrieval collaborator.
func WithWebCache(s knowledge.Searcher) Option {
	return func(r *Responder) {
		r.webCache = s
	}
}

// WithCompanyName sets the first-person company voice identity.
func WithCompanyName(name string) Option {
	return func(r *Responder) {
		r.companyName = name
	}
}

// WithTemperature sets the bot-level sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Responder) {
		r.temperature = t
	}
}

// WithMaxTokens sets the bot-level completion budget.
func WithMaxTokens(n int) Option {
	return func(r *Responder) {
		r.maxTokens = n
	}
}

// WithTopK sets how many snippets each retrieval source contributes.
func WithTopK(k int) Option {
	return func(r *Responder) {
		r.topK = k
	}
}

// New creates a response generation pipeline around the given model.
func New(chatModel model.Model, opts ...Option) (*Responder, error) {
	if chatModel == nil {
		return nil, ErrModelRequired
	}
	r := &Responder{
		chatModel:   chatModel,
		companyName: "our company",
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		topK:        defaultTopK,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.fallback = NewFallback(r.companyName)

	pool, err := ants.NewPool(defaultPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval pool: %w", err)
	}
	r.pool = pool
	return r, nil
}

// NewFromConfig builds the pipeline from bot-level settings. A nil chatModel
// is constructed from cfg.ModelName with the OpenAI-compatible adapter, and
// the retrieval toggles decide which searchers are wired. Extra options are
// applied last and win over the configuration.
func NewFromConfig(cfg config.BotConfig, chatModel model.Model, knowledgeBase, webCache knowledge.Searcher, opts ...Option) (*Responder, error) {
	if chatModel == nil {
		chatModel = openai.New(cfg.ModelName)
	}
	configured := make([]Option, 0, 6+len(opts))
	if cfg.CompanyName != "" {
		configured = append(configured, WithCompanyName(cfg.CompanyName))
	}
	if cfg.Temperature > 0 {
		configured = append(configured, WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		configured = append(configured, WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.RetrievalTopK > 0 {
		configured = append(configured, WithTopK(cfg.RetrievalTopK))
	}
	if cfg.KnowledgeBaseEnabled && knowledgeBase != nil {
		configured = append(configured, WithKnowledgeBase(knowledgeBase))
	}
	if cfg.WebCacheEnabled && webCache != nil {
		configured = append(configured, WithWebCache(webCache))
	}
	return New(chatModel, append(configured, opts...)...)
}

// Close releases the retrieval worker pool.
func (r *Responder) Close() {
	if r.pool != nil {
		r.pool.Release()
	}
}

// Fallback exposes the deterministic fallback policy so the engine can reuse
// it for error recovery outside the pipeline.
func (r *Responder) Fallback() *Fallback {
	return r.fallback
}

// Request carries one turn's generation input.
type Request struct {
	// UserMessage is the current inbound message.
	UserMessage string
	// History is the session transcript; only the trailing user/bot window
	// is forwarded to the model.
	History []session.Message
	// SystemPrompt optionally replaces the assembled grounding prompt
	// preamble (node-level override for ai_response nodes). The context
	// restriction block is always appended.
	SystemPrompt string
	// Temperature and MaxTokens optionally override the bot-level bounds.
	Temperature *float64
	MaxTokens   *int
}

// Reply is the pipeline output.
type Reply struct {
	// Content is the sanitized response text.
	Content string
	// Grounded is true when the content came from the model constrained by
	// retrieved context.
	Grounded bool
	// FallbackUsed is true when the deterministic fallback produced the
	// content instead of the model.
	FallbackUsed bool
	// Sources is the retrieval provenance, for message metadata.
	Sources []knowledge.Result
	// Usage is the model token accounting when the model was invoked.
	Usage *model.Usage
	// ModelName is the serving model, when the model was invoked.
	ModelName string
}

// Respond runs the guarded pipeline for one turn. It never returns an error
// to the caller: every failure path degrades to fallback content.
func (r *Responder) Respond(ctx context.Context, req *Request) *Reply {
	results := r.retrieve(ctx, req.UserMessage, req.History)

	// The single most important invariant: with zero relevant snippets the
	// model is never invoked and the engine never answers from general
	// knowledge.
	if len(results) == 0 {
		return &Reply{
			Content:      r.fallback.Reply(req.UserMessage),
			FallbackUsed: true,
		}
	}

	prompt := r.buildPrompt(req, results)
	rsp, err := r.chatModel.GenerateContent(ctx, prompt)
	if err != nil {
		log.Errorf("model invocation failed, falling back: %v", err)
		return &Reply{
			Content:      r.fallback.Reply(req.UserMessage),
			FallbackUsed: true,
			Sources:      results,
		}
	}

	content := strings.TrimSpace(rsp.Content)
	if content == "" || HasInternetMarkers(content) {
		log.Warnf("discarded completion with internet markers (model=%s)", rsp.Model)
		return &Reply{
			Content:      r.fallback.NoInfo(),
			FallbackUsed: true,
			Sources:      results,
		}
	}

	content = EnforceFirstPerson(content)
	if HasThirdPerson(content) {
		// Best-effort rewrite; residual violations are observed, not blocked.
		log.Warnf("residual third-person reference after rewrite: %q", content)
	}

	return &Reply{
		Content:   content,
		Grounded:  true,
		Sources:   results,
		Usage:     rsp.Usage,
		ModelName: rsp.Model,
	}
}

// retrieve queries both retrieval sources concurrently and concatenates
// their snippets. Source failures are logged and contribute nothing.
func (r *Responder) retrieve(ctx context.Context, userMessage string, history []session.Message) []knowledge.Result {
	query := expandQuery(userMessage, history)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		combined []knowledge.Result
	)
	search := func(name string, s knowledge.Searcher) {
		defer wg.Done()
		results, err := s.Search(ctx, query, r.topK)
		if err != nil {
			log.Errorf("%s retrieval failed: %v", name, err)
			return
		}
		mu.Lock()
		combined = append(combined, results...)
		mu.Unlock()
	}

	submit := func(name string, s knowledge.Searcher) {
		if s == nil {
			return
		}
		wg.Add(1)
		if err := r.pool.Submit(func() { search(name, s) }); err != nil {
			// Pool exhausted or released; degrade to inline execution.
			search(name, s)
		}
	}
	submit("knowledge base", r.knowledgeBase)
	submit("web cache", r.webCache)
	wg.Wait()

	return combined
}

// buildPrompt assembles the grounded system prompt, the trailing
// conversation window and the current user message.
func (r *Responder) buildPrompt(req *Request, results []knowledge.Result) *model.Request {
	contextBlock := buildContext(results)

	preamble := req.SystemPrompt
	if preamble == "" {
		preamble = fmt.Sprintf(
			"You are the virtual assistant of %s. Always speak as the company in first person plural"+
				" (\"we\", \"us\", \"our\"). Never refer to %s in the third person.",
			r.companyName, r.companyName)
	}
	system := fmt.Sprintf(`%s

Answer strictly and only using the context below. If the context does not contain the answer, reply that you do not have that information and offer to connect the user with our team. Never suggest searching online, never mention external websites, and never answer from general knowledge.

Context:
%s`, preamble, contextBlock)

	messages := []model.Message{model.NewSystemMessage(system)}
	for _, msg := range priorTurns(req.History) {
		if msg.Sender == session.SenderUser {
			messages = append(messages, model.NewUserMessage(msg.Content))
		} else {
			messages = append(messages, model.NewAssistantMessage(msg.Content))
		}
	}
	messages = append(messages, model.NewUserMessage(req.UserMessage))

	temperature := r.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := r.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	return &model.Request{
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
}
