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
	"context"

	"trpc.group/trpc-go/trpc-botflow-go/flow"
	"trpc.group/trpc-go/trpc-botflow-go/session"
)

// Message kind constants carried on outbound messages and responses.
const (
	KindText           = "text"
	KindQuestion       = "question"
	KindMedia          = "media"
	KindQRCode         = "qr_code"
	KindLocation       = "location"
	KindRating         = "rating"
	KindSurvey         = "survey"
	KindWebhook        = "webhook"
	KindAI             = "ai"
	KindHandoff        = "handoff"
	KindAnalyticsEvent = "analytics_event"
)

// Action constants signalled to external collaborators through the response.
const (
	ActionHandoff  = "handoff"
	ActionSaveLead = "save_lead"
)

// stepResult is what a node handler produces for one dispatch.
type stepResult struct {
	// content is the outbound text; empty means the node emits no message.
	content string
	// kind is the outbound message kind; defaults to text.
	kind string
	// options are quick-reply choices rendered with the content.
	options []string
	// mediaURL is an attachment reference.
	mediaURL string
	// action signals an external collaborator (handoff, save_lead).
	action string
	// metadata is merged into the outbound message metadata.
	metadata map[string]any
	// system appends the message with the system sender; used by nodes that
	// record provenance without speaking to the user.
	system bool

	// stay parks the session on the node (or parkOn) until the next inbound
	// message.
	stay bool
	// parkOn overrides the park target; used by action nodes that bounce a
	// failed validation back to the preceding prompt.
	parkOn string
	// end completes the flow.
	end bool
	// next pre-routes the follow-up node when routed is true; the engine
	// routes through the graph otherwise.
	next   *flow.Node
	routed bool
}

// turnContext carries per-turn state into node handlers.
type turnContext struct {
	sess *session.Session
	// input is the inbound user message for this turn.
	input string
	// parked is the node id the session was parked on when the turn began.
	parked string
	// answering is true while dispatching the parked interactive node, i.e.
	// the inbound message is its answer rather than its first visit.
	answering bool
}

// handlerFunc processes one node visit.
type handlerFunc func(ctx context.Context, tc *turnContext, node *flow.Node) *stepResult

// buildHandlers wires the closed dispatch table. Unknown kinds fall through
// to the pass-through message handler in dispatch.
func (e *Engine) buildHandlers() map[flow.NodeKind]handlerFunc {
	return map[flow.NodeKind]handlerFunc{
		flow.KindStart:          e.handleStart,
		flow.KindMessage:        e.handleMessage,
		flow.KindMedia:          e.handleMedia,
		flow.KindQuestion:       e.handleQuestion,
		flow.KindInput:          e.handleQuestion,
		flow.KindEmailInput:     e.handleValidatedInput,
		flow.KindPhoneInput:     e.handleValidatedInput,
		flow.KindNumberInput:    e.handleValidatedInput,
		flow.KindDateInput:      e.handleValidatedInput,
		flow.KindTimeInput:      e.handleValidatedInput,
		flow.KindRating:         e.handleValidatedInput,
		flow.KindSurvey:         e.handleSurvey,
		flow.KindLocation:       e.handleLocation,
		flow.KindQRCode:         e.handleQRCode,
		flow.KindCondition:      e.handleCondition,
		flow.KindRandom:         e.handleRandom,
		flow.KindVariable:       e.handleVariable,
		flow.KindAction:         e.handleAction,
		flow.KindWebhook:        e.handleWebhook,
		flow.KindAIResponse:     e.handleAIResponse,
		flow.KindIntent:         e.handleIntent,
		flow.KindEntity:         e.handleEntity,
		flow.KindSentiment:      e.handleSentiment,
		flow.KindLanguage:       e.handleLanguage,
		flow.KindTranslation:    e.handleTranslation,
		flow.KindAnalyticsEvent: e.handleAnalyticsEvent,
		flow.KindHandoff:        e.handleHandoff,
	}
}

// dispatch runs the handler for a node, falling back to pass-through message
// semantics for unknown kinds so unpublished builder experiments degrade
// instead of crashing a flow.
func (e *Engine) dispatch(ctx context.Context, tc *turnContext, node *flow.Node) *stepResult {
	handler, ok := e.handlers[node.Kind]
	if !ok {
		handler = e.handleMessage
	}
	return handler(ctx, tc, node)
}
