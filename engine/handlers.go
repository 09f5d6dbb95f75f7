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
	"fmt"
	"strconv"
	"strings"

	"trpc.group/trpc-go/trpc-botflow-go/flow"
	"trpc.group/trpc-go/trpc-botflow-go/log"
	"trpc.group/trpc-go/trpc-botflow-go/model"
	"trpc.group/trpc-go/trpc-botflow-go/responder"
	"trpc.group/trpc-go/trpc-botflow-go/session"
)

// defaultVariableNames map interactive node kinds to the variable their
// answer is stored under when the node declares none.
var defaultVariableNames = map[flow.NodeKind]string{
	flow.KindQuestion:    "answer",
	flow.KindInput:       "answer",
	flow.KindEmailInput:  "email",
	flow.KindPhoneInput:  "phone",
	flow.KindNumberInput: "number",
	flow.KindDateInput:   "date",
	flow.KindTimeInput:   "time",
	flow.KindRating:      "rating",
	flow.KindLocation:    "location",
	flow.KindQRCode:      "qr_response",
}

func variableName(node *flow.Node) string {
	if node.Data.VariableName != "" {
		return node.Data.VariableName
	}
	if name, ok := defaultVariableNames[node.Kind]; ok {
		return name
	}
	return "answer"
}

func (e *Engine) vars(tc *turnContext) map[string]any {
	return tc.sess.FlowState.Variables
}

func (e *Engine) handleStart(context.Context, *turnContext, *flow.Node) *stepResult {
	return &stepResult{}
}

func (e *Engine) handleMessage(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	return &stepResult{
		content: flow.Interpolate(node.Data.Content, e.vars(tc)),
		kind:    KindText,
	}
}

func (e *Engine) handleMedia(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	return &stepResult{
		content:  flow.Interpolate(node.Data.Content, e.vars(tc)),
		kind:     KindMedia,
		mediaURL: node.Data.MediaURL,
	}
}

// handleQuestion serves the plain question and free-input kinds: prompt and
// park on first visit, store the raw answer and advance when it arrives.
func (e *Engine) handleQuestion(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	if tc.answering {
		e.vars(tc)[variableName(node)] = strings.TrimSpace(tc.input)
		return &stepResult{}
	}
	return e.prompt(tc, node, KindQuestion, "Could you tell us a bit more?")
}

// promptTexts are per-kind defaults and re-prompts for the validated inputs.
var promptTexts = map[flow.NodeKind]struct{ prompt, reprompt string }{
	flow.KindEmailInput: {
		"What's your email address?",
		"That doesn't look like a valid email address. Could you try again?",
	},
	flow.KindPhoneInput: {
		"What's the best phone number to reach you?",
		"That doesn't look like a valid phone number. Could you try again?",
	},
	flow.KindNumberInput: {
		"Please enter a number.",
		"That doesn't look like a number. Could you try again?",
	},
	flow.KindDateInput: {
		"What date works for you? (e.g. 2024-03-15)",
		"Please enter a valid date, like 2024-03-15.",
	},
	flow.KindTimeInput: {
		"What time works for you? (e.g. 14:30)",
		"Please enter a valid time, like 14:30 or 2:30 PM.",
	},
	flow.KindRating: {
		"How would you rate your experience?",
		"", // built dynamically from the scale
	},
}

// handleValidatedInput serves the typed input kinds with their validation
// policy: a failed answer re-prompts and stays, it never advances.
func (e *Engine) handleValidatedInput(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	texts := promptTexts[node.Kind]
	if !tc.answering {
		rsp := e.prompt(tc, node, kindForInput(node.Kind), texts.prompt)
		if node.Kind == flow.KindRating && len(rsp.options) == 0 {
			rsp.options = ratingOptions(node.Data.Scale)
		}
		return rsp
	}

	value, ok := e.validate(node, tc.input)
	if !ok {
		reprompt := texts.reprompt
		if node.Kind == flow.KindRating {
			scale := node.Data.Scale
			if scale <= 0 {
				scale = 5
			}
			reprompt = fmt.Sprintf("Please enter a number between 1 and %d.", scale)
		}
		return &stepResult{content: reprompt, kind: kindForInput(node.Kind), stay: true}
	}
	e.vars(tc)[variableName(node)] = value
	return &stepResult{}
}

// validate applies the per-kind validation policy.
func (e *Engine) validate(node *flow.Node, input string) (any, bool) {
	switch node.Kind {
	case flow.KindEmailInput:
		return firstOK(validateEmail(input))
	case flow.KindPhoneInput:
		return firstOK(validatePhone(input))
	case flow.KindNumberInput:
		v, ok := validateNumber(input)
		return v, ok
	case flow.KindDateInput:
		return firstOK(validateDate(input))
	case flow.KindTimeInput:
		return firstOK(validateTime(input))
	case flow.KindRating:
		v, ok := validateRating(input, node.Data.Scale)
		return v, ok
	default:
		return strings.TrimSpace(input), true
	}
}

func firstOK(value string, ok bool) (any, bool) {
	return value, ok
}

func kindForInput(kind flow.NodeKind) string {
	if kind == flow.KindRating {
		return KindRating
	}
	return KindQuestion
}

func ratingOptions(scale int) []string {
	if scale <= 0 {
		scale = 5
	}
	options := make([]string, scale)
	for i := range options {
		options[i] = strconv.Itoa(i + 1)
	}
	return options
}

// prompt renders an interactive node's question and parks the session on it.
func (e *Engine) prompt(tc *turnContext, node *flow.Node, kind, fallbackText string) *stepResult {
	content := flow.Interpolate(node.Data.Content, e.vars(tc))
	if content == "" {
		content = fallbackText
	}
	return &stepResult{
		content:  content,
		kind:     kind,
		options:  node.Data.Options,
		mediaURL: node.Data.MediaURL,
		stay:     true,
	}
}

// surveyIndexKey is the flow-context key tracking survey progress per node.
func surveyIndexKey(nodeID string) string {
	return "survey_index:" + nodeID
}

// handleSurvey walks a multi-question sequence, accumulating answers under
// survey.<name> and advancing only after the last answer.
func (e *Engine) handleSurvey(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	questions := node.Data.Questions
	if len(questions) == 0 {
		return &stepResult{}
	}
	key := surveyIndexKey(node.ID)
	index := ctxInt(tc.sess.FlowState.Context, key)

	if tc.answering && index < len(questions) {
		q := questions[index]
		name := q.Name
		if name == "" {
			name = fmt.Sprintf("q%d", index+1)
		}
		e.vars(tc)["survey."+name] = strings.TrimSpace(tc.input)
		index++
		tc.sess.FlowState.Context[key] = index
	}

	if index >= len(questions) {
		delete(tc.sess.FlowState.Context, key)
		return &stepResult{}
	}
	q := questions[index]
	return &stepResult{
		content: flow.Interpolate(q.Prompt, e.vars(tc)),
		kind:    KindSurvey,
		options: q.Options,
		stay:    true,
	}
}

func (e *Engine) handleLocation(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	if tc.answering {
		e.vars(tc)[variableName(node)] = strings.TrimSpace(tc.input)
		return &stepResult{}
	}
	return e.prompt(tc, node, KindLocation, "Could you share your location with us?")
}

func (e *Engine) handleQRCode(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	if tc.answering {
		e.vars(tc)[variableName(node)] = strings.TrimSpace(tc.input)
		return &stepResult{}
	}
	return e.prompt(tc, node, KindQRCode, "Please scan the code and let us know once you're done.")
}

// handleCondition emits nothing; branch selection happens in routing, where
// edge conditions are evaluated in declaration order.
func (e *Engine) handleCondition(context.Context, *turnContext, *flow.Node) *stepResult {
	return &stepResult{}
}

// handleRandom uniformly picks one outgoing connection.
func (e *Engine) handleRandom(_ context.Context, _ *turnContext, node *flow.Node) *stepResult {
	conns := e.graph.ConnectionsFrom(node.ID)
	if len(conns) == 0 {
		return &stepResult{routed: true}
	}
	e.rngMu.Lock()
	pick := conns[e.rng.Intn(len(conns))]
	e.rngMu.Unlock()
	next, _ := e.graph.Node(pick.Target)
	return &stepResult{routed: true, next: next}
}

// handleVariable applies the node's explicit set/clear mutations; this is
// the only node allowed to remove session variables.
func (e *Engine) handleVariable(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	vars := e.vars(tc)
	for k, v := range node.Data.Set {
		vars[k] = flow.Interpolate(v, vars)
	}
	for _, k := range node.Data.Clear {
		delete(vars, k)
	}
	return &stepResult{}
}

// leadFields are the variable names a save_lead action sweeps into a lead
// record, first name wins per field.
var leadFields = map[string][]string{
	"email":   {"email"},
	"phone":   {"phone", "phoneNumber"},
	"name":    {"name", "fullName"},
	"company": {"company", "companyName"},
}

// handleAction serves the action sub-kinds. collect_email and collect_phone
// validate the inbound answer; on failure the turn bounces back to the
// preceding prompt instead of advancing.
func (e *Engine) handleAction(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	vars := e.vars(tc)
	switch node.Data.Action {
	case "collect_email":
		value, ok := validateEmail(tc.input)
		if !ok {
			return &stepResult{
				content: promptTexts[flow.KindEmailInput].reprompt,
				kind:    KindQuestion,
				stay:    true,
				parkOn:  tc.parked,
			}
		}
		vars["email"] = value
		return &stepResult{}
	case "collect_phone":
		value, ok := validatePhone(tc.input)
		if !ok {
			return &stepResult{
				content: promptTexts[flow.KindPhoneInput].reprompt,
				kind:    KindQuestion,
				stay:    true,
				parkOn:  tc.parked,
			}
		}
		vars["phone"] = value
		return &stepResult{}
	case "save_lead":
		lead := make(map[string]any)
		for field, names := range leadFields {
			for _, name := range names {
				if v, ok := vars[name]; ok {
					lead[field] = v
					break
				}
			}
		}
		// Recorded as a system message so the capture survives even though
		// the node says nothing to the user.
		return &stepResult{
			action:   ActionSaveLead,
			metadata: map[string]any{"lead": lead},
			system:   true,
		}
	default:
		return &stepResult{}
	}
}

// webhookFailureMessage invites a retry instead of surfacing the failure.
const webhookFailureMessage = "We couldn't reach that service just now. Please try again in a moment."

func (e *Engine) handleWebhook(ctx context.Context, tc *turnContext, node *flow.Node) *stepResult {
	reply, err := e.webhook.invoke(ctx, node, tc.sess, tc.input)
	if err != nil {
		log.Errorf("webhook node %s failed: %v", node.ID, err)
		return &stepResult{content: webhookFailureMessage, kind: KindWebhook}
	}
	vars := e.vars(tc)
	for k, v := range reply.Variables {
		vars[k] = v
	}
	content := reply.Message
	if content == "" {
		content = flow.Interpolate(node.Data.Content, vars)
	}
	return &stepResult{content: content, kind: KindWebhook}
}

// handleAIResponse runs the guarded generation pipeline with node-level
// overrides.
func (e *Engine) handleAIResponse(ctx context.Context, tc *turnContext, node *flow.Node) *stepResult {
	if e.responder == nil {
		return &stepResult{
			content:  e.fallback.Reply(tc.input),
			kind:     KindAI,
			metadata: map[string]any{"fallback": true},
		}
	}
	reply := e.responder.Respond(ctx, &responder.Request{
		UserMessage:  tc.input,
		History:      priorMessages(tc),
		SystemPrompt: node.Data.SystemPrompt,
		Temperature:  node.Data.Temperature,
		MaxTokens:    node.Data.MaxTokens,
	})
	metadata := map[string]any{
		"aiGenerated": true,
		"fallback":    reply.FallbackUsed,
	}
	if len(reply.Sources) > 0 {
		metadata["sources"] = reply.Sources
	}
	if reply.Usage != nil {
		metadata["usage"] = reply.Usage
	}
	if reply.ModelName != "" {
		metadata["model"] = reply.ModelName
	}
	return &stepResult{content: reply.Content, kind: KindAI, metadata: metadata}
}

// priorMessages returns the transcript without the current inbound message,
// which the pipeline appends itself.
func priorMessages(tc *turnContext) []session.Message {
	msgs := tc.sess.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Sender == session.SenderUser && msgs[n-1].Content == tc.input {
		return msgs[:n-1]
	}
	return msgs
}

func (e *Engine) handleIntent(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	e.vars(tc)["intent"] = matchIntent(tc.input, node.Data.Intents)
	return &stepResult{}
}

func (e *Engine) handleEntity(_ context.Context, tc *turnContext, _ *flow.Node) *stepResult {
	vars := e.vars(tc)
	for k, v := range extractEntities(tc.input) {
		vars[k] = v
	}
	return &stepResult{}
}

func (e *Engine) handleSentiment(_ context.Context, tc *turnContext, _ *flow.Node) *stepResult {
	e.vars(tc)["sentiment"] = scoreSentiment(tc.input)
	return &stepResult{}
}

func (e *Engine) handleLanguage(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	vars := e.vars(tc)
	candidate, _ := vars["language"].(string)
	if candidate == "" {
		candidate = tc.sess.UserInfo.Locale
	}
	vars["language"] = matchLanguage(candidate, node.Data.Languages)
	return &stepResult{}
}

// handleTranslation rewrites the node content into the session language via
// a direct model call; any failure passes the original text through.
func (e *Engine) handleTranslation(ctx context.Context, tc *turnContext, node *flow.Node) *stepResult {
	vars := e.vars(tc)
	text := flow.Interpolate(node.Data.Content, vars)
	if text == "" {
		return &stepResult{}
	}
	target := node.Data.TargetLanguage
	if target == "" {
		target, _ = vars["language"].(string)
	}
	if target == "" || e.chatModel == nil {
		return &stepResult{content: text, kind: KindText}
	}

	temperature := 0.2
	maxTokens := 400
	rsp, err := e.chatModel.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(fmt.Sprintf(
				"Translate the user's message into %s. Reply with the translation only.", target)),
			model.NewUserMessage(text),
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil || strings.TrimSpace(rsp.Content) == "" {
		log.Warnf("translation node %s failed, passing original through: %v", node.ID, err)
		return &stepResult{content: text, kind: KindText}
	}
	return &stepResult{
		content:  strings.TrimSpace(rsp.Content),
		kind:     KindText,
		metadata: map[string]any{"translatedTo": target},
	}
}

// handleAnalyticsEvent records the event and a variables snapshot as system
// message metadata; emission to an analytics sink is the collaborator's job.
func (e *Engine) handleAnalyticsEvent(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	snapshot := make(map[string]any, len(e.vars(tc)))
	for k, v := range e.vars(tc) {
		snapshot[k] = v
	}
	return &stepResult{
		kind:   KindAnalyticsEvent,
		system: true,
		metadata: map[string]any{
			"event":     node.Data.Event,
			"variables": snapshot,
		},
	}
}

// handleHandoff terminates the flow and signals the handoff collaborator;
// queueing and agent assignment happen entirely outside the engine.
func (e *Engine) handleHandoff(_ context.Context, tc *turnContext, node *flow.Node) *stepResult {
	content := flow.Interpolate(node.Data.Content, e.vars(tc))
	if content == "" {
		content = "Let me connect you with a member of our team."
	}
	reason := node.Data.Reason
	if reason == "" {
		reason = "user_request"
	}
	return &stepResult{
		content:  content,
		kind:     KindHandoff,
		action:   ActionHandoff,
		metadata: map[string]any{"reason": reason},
		end:      true,
	}
}

// ctxInt reads an int from flow context, tolerating the float64 that JSON
// round-trips produce.
func ctxInt(ctx map[string]any, key string) int {
	switch v := ctx[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
