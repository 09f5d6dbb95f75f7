//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package engine implements the conversation flow execution engine: the
// interpreter that advances a session through a flow graph one turn at a
// time, dispatching node handlers and persisting the resulting state.
//
// The engine assumes at most one concurrent ProcessMessage call per session
// id; different sessions are fully independent and share only the immutable
// flow graph.
package engine

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-botflow-go/config"
	"trpc.group/trpc-go/trpc-botflow-go/flow"
	"trpc.group/trpc-go/trpc-botflow-go/log"
	"trpc.group/trpc-go/trpc-botflow-go/model"
	"trpc.group/trpc-go/trpc-botflow-go/responder"
	"trpc.group/trpc-go/trpc-botflow-go/session"
)

const (
	// completionMessage closes a flow that ended or tripped the loop guard.
	completionMessage = "Thanks for chatting with us! If you need anything else, just send us a message."
	// defaultFallbackMessage is the last-resort recovery response.
	defaultFallbackMessage = "Sorry, something went wrong on our side. Could you try that again?"
)

// Engine drives sessions through one bot's flow graph.
type Engine struct {
	botID     string
	graph     *flow.Graph
	sessions  session.Service
	responder *responder.Responder
	chatModel model.Model
	webhook   *webhookClient
	fallback  *responder.Fallback
	cfg       config.BotConfig
	handlers  map[flow.NodeKind]handlerFunc
	tracer    trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures the Engine.
type Option func(*Engine)

// WithConfig sets the bot configuration.
func WithConfig(cfg config.BotConfig) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithResponder sets the guarded generation pipeline used by ai_response
// nodes and post-flow free chat.
func WithResponder(r *responder.Responder) Option {
	return func(e *Engine) {
		e.responder = r
	}
}

// WithModel sets the model used by translation nodes.
func WithModel(m model.Model) Option {
	return func(e *Engine) {
		e.chatModel = m
	}
}

// WithHTTPClient overrides the webhook HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		e.webhook = newWebhookClient(client)
	}
}

// WithRandomSeed seeds random-node edge selection, for reproducible tests.
func WithRandomSeed(seed int64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates an engine for one bot. A nil graph behaves as an empty one:
// every turn degrades to the fallback or free-chat path.
func New(botID string, graph *flow.Graph, sessions session.Service, opts ...Option) *Engine {
	if graph == nil {
		graph = flow.New(nil, nil)
	}
	e := &Engine{
		botID:    botID,
		graph:    graph,
		sessions: sessions,
		cfg:      config.Default(),
		webhook:  newWebhookClient(nil),
		tracer:   otel.Tracer("trpc.group/trpc-go/trpc-botflow-go/engine"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.LogLevel != "" {
		log.SetLevel(e.cfg.LogLevel)
	}
	if e.responder != nil {
		e.fallback = e.responder.Fallback()
	} else {
		e.fallback = responder.NewFallback(e.cfg.CompanyName)
	}
	e.handlers = e.buildHandlers()
	return e
}

// Response is the outcome of one turn, returned to the channel layer.
type Response struct {
	// ID is the id of the last outbound message.
	ID string `json:"id"`
	// Content is the user-visible text; multiple messages produced in one
	// turn are joined with blank lines.
	Content string `json:"content"`
	// Kind is the kind of the last user-visible message.
	Kind string `json:"kind"`
	// Options are quick-reply choices, when the last message carries any.
	Options []string `json:"options,omitempty"`
	// MediaURL is an attachment reference, when present.
	MediaURL string `json:"mediaUrl,omitempty"`
	// Action signals an external collaborator (handoff, save_lead).
	Action string `json:"action,omitempty"`
	// Metadata merges the metadata of every message produced this turn.
	Metadata map[string]any `json:"metadata,omitempty"`
	// ConversationID is the engine-assigned conversation identity.
	ConversationID string `json:"conversationId"`
	// FlowState is the post-turn flow state.
	FlowState session.FlowState `json:"flowState"`
	// Messages are all messages appended this turn, system entries included.
	Messages []session.Message `json:"messages,omitempty"`
}

// ProcessMessage runs one conversation turn. It never returns an error for
// content-level failures; every failure path funnels into natural-language
// fallback content. The returned error is reserved for programmer mistakes
// (nil engine dependencies).
func (e *Engine) ProcessMessage(ctx context.Context, message, sessionID string, info session.UserInfo) (rsp *Response) {
	ctx, span := e.tracer.Start(ctx, "engine.process_message",
		trace.WithAttributes(
			attribute.String("bot.id", e.botID),
			attribute.String("session.id", sessionID),
		))
	defer span.End()

	sess, created := e.loadOrCreate(ctx, sessionID, info)

	// Defensive catch-all around the whole turn: the user gets the bot's
	// generic fallback and the inbound message is still recorded.
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("turn panicked for session %s: %v", sessionID, r)
			e.persist(ctx, sess, created)
			rsp = &Response{
				ID:             uuid.NewString(),
				Content:        e.recoveryMessage(),
				Kind:           KindText,
				ConversationID: sess.ConversationID,
				FlowState:      sess.FlowState,
			}
		}
	}()

	before := len(sess.Messages)
	sess.Append(session.Message{
		Sender:  session.SenderUser,
		Content: message,
		Kind:    KindText,
	})

	turnMessages := e.runTurn(ctx, sess, message, before)

	e.persist(ctx, sess, created)
	span.SetAttributes(attribute.Int("turn.messages", len(turnMessages)))
	return e.buildResponse(sess, turnMessages)
}

// runTurn advances the flow and returns the messages appended this turn.
func (e *Engine) runTurn(ctx context.Context, sess *session.Session, message string, before int) []session.Message {
	sess.FlowState.LoopCount++
	switch {
	case sess.FlowState.IsCompleted:
		e.freeChat(ctx, sess, message)
	case sess.FlowState.LoopCount > e.cfg.MaxLoopCount:
		log.Warnf("session %s exceeded max loop count %d, completing flow", sess.ID, e.cfg.MaxLoopCount)
		e.completeFlow(sess)
	default:
		e.advance(ctx, sess, message)
	}

	return sess.Messages[before:]
}

// advance is the pass-through loop: dispatch the current node, route, and
// repeat until an interactive node parks the session, the flow ends, or the
// loop guard trips.
func (e *Engine) advance(ctx context.Context, sess *session.Session, message string) {
	parked := sess.FlowState.CurrentNode

	var node *flow.Node
	if parked != "" {
		// Unknown parked node means the graph changed under the session;
		// treat it as end of flow, never as an error.
		node, _ = e.graph.Node(parked)
	} else {
		node = e.graph.StartNode()
	}
	if node == nil {
		e.completeFlow(sess)
		return
	}

	tc := &turnContext{sess: sess, input: message, parked: parked}
	produced := false

	for hops := 0; node != nil; hops++ {
		if hops >= e.cfg.MaxPassthroughHops {
			log.Warnf("session %s tripped pass-through loop guard at node %s", sess.ID, node.ID)
			e.completeFlow(sess)
			return
		}

		tc.answering = hops == 0 && node.ID == parked && node.Kind.IsInteractive()
		res := e.dispatch(ctx, tc, node)
		if e.emit(sess, node, res) {
			produced = true
		}

		if res.stay {
			park := res.parkOn
			if park == "" {
				park = node.ID
			}
			sess.FlowState.CurrentNode = park
			sess.FlowState.NextNode = e.preRoute(park)
			return
		}

		sess.FlowState.CompletedNodes[node.ID] = true
		if res.end {
			sess.FlowState.IsCompleted = true
			sess.FlowState.CurrentNode = ""
			sess.FlowState.NextNode = ""
			return
		}

		var next *flow.Node
		switch {
		case res.routed:
			next = res.next
		case node.ID == parked && sess.FlowState.NextNode != "":
			// Consume the pre-routed hint left when the node parked. A stale
			// hint (graph changed between turns) falls back to live routing.
			next, _ = e.graph.Node(sess.FlowState.NextNode)
			if next == nil {
				next = e.graph.Route(node, sess.FlowState.Variables, message)
			}
		default:
			next = e.graph.Route(node, sess.FlowState.Variables, message)
		}
		if next == nil {
			sess.FlowState.IsCompleted = true
			sess.FlowState.CurrentNode = ""
			sess.FlowState.NextNode = ""
			if !produced {
				e.appendBot(sess, "", completionMessage, KindText, nil)
			}
			return
		}
		sess.FlowState.CurrentNode = next.ID
		sess.FlowState.NextNode = ""
		node = next
	}
}

// preRoute resolves the follow-up of a parked node when the decision is
// static, i.e. a single unconditioned outgoing connection. Conditioned edges
// may depend on the pending answer and are never pre-routed.
func (e *Engine) preRoute(nodeID string) string {
	conns := e.graph.ConnectionsFrom(nodeID)
	if len(conns) != 1 || conns[0].Condition != nil {
		return ""
	}
	if n, ok := e.graph.Node(conns[0].Target); ok {
		return n.ID
	}
	return ""
}

// freeChat answers turns arriving after the flow completed: grounded AI when
// a responder is configured, deterministic fallback otherwise.
func (e *Engine) freeChat(ctx context.Context, sess *session.Session, message string) {
	if e.responder == nil {
		e.appendBot(sess, "", e.fallback.Reply(message), KindText, nil)
		return
	}
	history := sess.Messages
	if n := len(history); n > 0 && history[n-1].Sender == session.SenderUser {
		history = history[:n-1]
	}
	reply := e.responder.Respond(ctx, &responder.Request{
		UserMessage: message,
		History:     history,
	})
	metadata := map[string]any{"aiGenerated": !reply.FallbackUsed, "fallback": reply.FallbackUsed}
	if len(reply.Sources) > 0 {
		metadata["sources"] = reply.Sources
	}
	e.appendBot(sess, "", reply.Content, KindAI, metadata)
}

// completeFlow terminates the flow with the generic completion message.
func (e *Engine) completeFlow(sess *session.Session) {
	sess.FlowState.IsCompleted = true
	sess.FlowState.CurrentNode = ""
	sess.FlowState.NextNode = ""
	e.appendBot(sess, "", completionMessage, KindText, nil)
}

// emit appends the handler's output to the transcript; reports whether a
// user-visible message was produced.
func (e *Engine) emit(sess *session.Session, node *flow.Node, res *stepResult) bool {
	if res.content == "" && !res.system {
		return false
	}
	kind := res.kind
	if kind == "" {
		kind = KindText
	}
	sender := session.SenderBot
	if res.system {
		sender = session.SenderSystem
	}
	metadata := res.metadata
	if res.mediaURL != "" || len(res.options) > 0 || res.action != "" {
		if metadata == nil {
			metadata = make(map[string]any)
		}
		if res.mediaURL != "" {
			metadata["mediaUrl"] = res.mediaURL
		}
		if len(res.options) > 0 {
			metadata["options"] = res.options
		}
		if res.action != "" {
			metadata["action"] = res.action
		}
	}
	sess.Append(session.Message{
		Sender:   sender,
		Content:  res.content,
		Kind:     kind,
		NodeID:   node.ID,
		Metadata: metadata,
	})
	return !res.system
}

// appendBot appends a plain bot message.
func (e *Engine) appendBot(sess *session.Session, nodeID, content, kind string, metadata map[string]any) {
	sess.Append(session.Message{
		Sender:   session.SenderBot,
		Content:  content,
		Kind:     kind,
		NodeID:   nodeID,
		Metadata: metadata,
	})
}

// loadOrCreate fetches the session, creating it transparently on the first
// inbound message for an unseen session id. Store failures degrade to an
// ephemeral session so the turn can still be answered.
func (e *Engine) loadOrCreate(ctx context.Context, sessionID string, info session.UserInfo) (*session.Session, bool) {
	sess, err := e.sessions.GetSession(ctx, e.botID, sessionID)
	if err == nil {
		return sess, false
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		log.Errorf("failed to load session %s, starting ephemeral: %v", sessionID, err)
	}
	return session.New(e.botID, sessionID, info), true
}

// persist writes the session before the response is returned. A write
// failure is logged; the computed response is still returned to the caller.
func (e *Engine) persist(ctx context.Context, sess *session.Session, created bool) {
	var err error
	if created {
		err = e.sessions.CreateSession(ctx, sess)
	} else {
		err = e.sessions.UpdateSession(ctx, sess)
	}
	if err != nil {
		log.Errorf("failed to persist session %s: %v", sess.ID, err)
	}
}

// buildResponse folds this turn's messages into the outbound contract.
func (e *Engine) buildResponse(sess *session.Session, turnMessages []session.Message) *Response {
	rsp := &Response{
		ID:             uuid.NewString(),
		Kind:           KindText,
		ConversationID: sess.ConversationID,
		FlowState:      sess.FlowState,
		Messages:       turnMessages,
	}

	var parts []string
	merged := make(map[string]any)
	for _, msg := range turnMessages {
		if msg.Sender == session.SenderUser {
			continue
		}
		for k, v := range msg.Metadata {
			merged[k] = v
		}
		if msg.Sender == session.SenderSystem {
			continue
		}
		if msg.Content != "" {
			parts = append(parts, msg.Content)
		}
		rsp.ID = msg.ID
		rsp.Kind = msg.Kind
		if opts, ok := msg.Metadata["options"].([]string); ok {
			rsp.Options = opts
		}
		if url, ok := msg.Metadata["mediaUrl"].(string); ok {
			rsp.MediaURL = url
		}
	}
	// Actions may ride on system messages (save_lead), so resolve them from
	// the merged metadata rather than per visible message.
	if action, ok := merged["action"].(string); ok {
		rsp.Action = action
	}
	rsp.Content = strings.Join(parts, "\n\n")
	if rsp.Content == "" {
		rsp.Content = e.fallback.Reply("")
	}
	if len(merged) > 0 {
		rsp.Metadata = merged
	}
	return rsp
}

// recoveryMessage is the configured generic fallback for unrecoverable turn
// failures.
func (e *Engine) recoveryMessage() string {
	if e.cfg.FallbackMessage != "" {
		return e.cfg.FallbackMessage
	}
	return defaultFallbackMessage
}
