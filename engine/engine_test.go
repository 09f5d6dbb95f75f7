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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"trpc.group/trpc-go/trpc-botflow-go/config"
	"trpc.group/trpc-go/trpc-botflow-go/flow"
	kbinmemory "trpc.group/trpc-go/trpc-botflow-go/knowledge/inmemory"
	"trpc.group/trpc-go/trpc-botflow-go/log"
	"trpc.group/trpc-go/trpc-botflow-go/model"
	"trpc.group/trpc-go/trpc-botflow-go/responder"
	"trpc.group/trpc-go/trpc-botflow-go/session"
	"trpc.group/trpc-go/trpc-botflow-go/session/inmemory"
)

func newEngine(t *testing.T, graph *flow.Graph, opts ...Option) (*Engine, *inmemory.SessionService) {
	t.Helper()
	svc := inmemory.NewSessionService()
	t.Cleanup(func() { svc.Close() })
	return New("bot1", graph, svc, opts...), svc
}

func TestProcessMessageEndToEnd(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "welcome", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Hi there! Welcome to Acme."}},
		{ID: "ask-email", Kind: flow.KindQuestion, Data: flow.NodeData{Content: "What's your email?"}},
		{ID: "collect", Kind: flow.KindAction, Data: flow.NodeData{Action: "collect_email"}},
	}, []*flow.Connection{
		{ID: "c1", Source: "welcome", Target: "ask-email"},
		{ID: "c2", Source: "ask-email", Target: "collect"},
	})
	e, svc := newEngine(t, g)
	ctx := context.Background()

	// Turn 1: welcome message plus the question, parked on the question.
	rsp := e.ProcessMessage(ctx, "hi", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "Hi there! Welcome to Acme.")
	assert.Contains(t, rsp.Content, "What's your email?")
	assert.Equal(t, "ask-email", rsp.FlowState.CurrentNode)

	// Turn 2: invalid email re-prompts without advancing.
	rsp = e.ProcessMessage(ctx, "not-an-email", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "valid email")
	assert.Equal(t, "ask-email", rsp.FlowState.CurrentNode)

	// Turn 3: valid email is stored and the flow advances past the action.
	rsp = e.ProcessMessage(ctx, "a@b.com", "sess1", session.UserInfo{})
	assert.True(t, rsp.FlowState.IsCompleted)
	assert.Empty(t, rsp.FlowState.CurrentNode)

	sess, err := svc.GetSession(ctx, "bot1", "sess1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", sess.FlowState.Variables["email"])
	assert.True(t, sess.FlowState.CompletedNodes["collect"])
}

func TestNewAppliesLogLevel(t *testing.T) {
	t.Cleanup(func() { log.SetLevel(log.LevelInfo) })

	cfg := config.Default()
	cfg.LogLevel = log.LevelDebug
	e, _ := newEngine(t, flow.New(nil, nil), WithConfig(cfg))
	require.NotNil(t, e)

	leveler, ok := log.Default.(interface{ Level() zapcore.Level })
	require.True(t, ok)
	assert.Equal(t, zapcore.DebugLevel, leveler.Level())
}

func TestPreRoutedNextNode(t *testing.T) {
	t.Run("single unconditioned edge is pre-routed", func(t *testing.T) {
		g := flow.New([]*flow.Node{
			{ID: "q", Kind: flow.KindQuestion, Data: flow.NodeData{Content: "Name?", VariableName: "name"}},
			{ID: "done", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Hi {{name}}!"}},
		}, []*flow.Connection{
			{ID: "c1", Source: "q", Target: "done"},
		})
		e, _ := newEngine(t, g)
		ctx := context.Background()

		rsp := e.ProcessMessage(ctx, "hi", "sess1", session.UserInfo{})
		assert.Equal(t, "q", rsp.FlowState.CurrentNode)
		assert.Equal(t, "done", rsp.FlowState.NextNode)

		rsp = e.ProcessMessage(ctx, "Ada", "sess1", session.UserInfo{})
		assert.Contains(t, rsp.Content, "Hi Ada!")
		assert.Empty(t, rsp.FlowState.NextNode)
	})

	t.Run("conditioned edges are never pre-routed", func(t *testing.T) {
		g := flow.New([]*flow.Node{
			{ID: "q", Kind: flow.KindQuestion, Data: flow.NodeData{Content: "Yes or no?"}},
			{ID: "yes", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Great!"}},
			{ID: "no", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Too bad."}},
		}, []*flow.Connection{
			{ID: "c1", Source: "q", Target: "yes",
				Condition: &flow.Condition{Field: "answer", Operator: flow.OpEquals, Value: "yes"}},
			{ID: "c2", Source: "q", Target: "no"},
		})
		e, _ := newEngine(t, g)

		rsp := e.ProcessMessage(context.Background(), "hi", "sess1", session.UserInfo{})
		assert.Equal(t, "q", rsp.FlowState.CurrentNode)
		assert.Empty(t, rsp.FlowState.NextNode)
	})
}

func TestLoopGuard(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "ping", Kind: flow.KindMessage, Data: flow.NodeData{Content: "ping"}},
		{ID: "pong", Kind: flow.KindMessage, Data: flow.NodeData{Content: "pong"}},
	}, []*flow.Connection{
		{ID: "c1", Source: "ping", Target: "pong"},
		{ID: "c2", Source: "pong", Target: "ping"},
	})
	cfg := config.Default()
	cfg.MaxPassthroughHops = 4
	e, _ := newEngine(t, g, WithConfig(cfg))

	rsp := e.ProcessMessage(context.Background(), "hi", "sess1", session.UserInfo{})

	assert.True(t, rsp.FlowState.IsCompleted)
	// Exactly four pass-through iterations ran before the guard tripped.
	var hops int
	for _, msg := range rsp.Messages {
		if msg.Sender == session.SenderBot && (msg.Content == "ping" || msg.Content == "pong") {
			hops++
		}
	}
	assert.Equal(t, 4, hops)
	assert.Contains(t, rsp.Content, completionMessage)
}

func TestConditionNodeRouting(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "intent", Kind: flow.KindIntent, Data: flow.NodeData{Intents: []flow.Intent{
			{Name: "pricing", Phrases: []string{"price", "how much"}},
		}}},
		{ID: "branch", Kind: flow.KindCondition},
		{ID: "pricing", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Our plans start at $10."}},
		{ID: "other", Kind: flow.KindMessage, Data: flow.NodeData{Content: "How can we help?"}},
	}, []*flow.Connection{
		{ID: "c0", Source: "intent", Target: "branch"},
		{ID: "c1", Source: "branch", Target: "pricing",
			Condition: &flow.Condition{Field: "intent", Operator: flow.OpEquals, Value: "pricing"}},
		{ID: "c2", Source: "branch", Target: "other"},
	})
	e, _ := newEngine(t, g)

	rsp := e.ProcessMessage(context.Background(), "how much is it?", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "Our plans start at $10.")

	rsp = e.ProcessMessage(context.Background(), "good morning", "sess2", session.UserInfo{})
	assert.Contains(t, rsp.Content, "How can we help?")
}

func TestVariableNodeAndInterpolation(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "set", Kind: flow.KindVariable, Data: flow.NodeData{Set: map[string]string{"plan": "Pro"}}},
		{ID: "msg", Kind: flow.KindMessage, Data: flow.NodeData{Content: "You're on the {{plan}} plan."}},
		{ID: "clear", Kind: flow.KindVariable, Data: flow.NodeData{Clear: []string{"plan"}}},
		{ID: "after", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Plan:{{plan}}."}},
	}, []*flow.Connection{
		{ID: "c1", Source: "set", Target: "msg"},
		{ID: "c2", Source: "msg", Target: "clear"},
		{ID: "c3", Source: "clear", Target: "after"},
	})
	e, _ := newEngine(t, g)

	rsp := e.ProcessMessage(context.Background(), "hi", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "You're on the Pro plan.")
	// The variable node's clear is the only wholesale removal.
	assert.Contains(t, rsp.Content, "Plan:.")
}

func TestRandomNodeSeeded(t *testing.T) {
	newGraph := func() *flow.Graph {
		return flow.New([]*flow.Node{
			{ID: "rand", Kind: flow.KindRandom},
			{ID: "a", Kind: flow.KindMessage, Data: flow.NodeData{Content: "A"}},
			{ID: "b", Kind: flow.KindMessage, Data: flow.NodeData{Content: "B"}},
		}, []*flow.Connection{
			{ID: "c1", Source: "rand", Target: "a"},
			{ID: "c2", Source: "rand", Target: "b"},
		})
	}
	e1, _ := newEngine(t, newGraph(), WithRandomSeed(42))
	e2, _ := newEngine(t, newGraph(), WithRandomSeed(42))

	rsp1 := e1.ProcessMessage(context.Background(), "hi", "s", session.UserInfo{})
	rsp2 := e2.ProcessMessage(context.Background(), "hi", "s", session.UserInfo{})

	assert.Contains(t, []string{"A", "B"}, rsp1.Messages[1].Content)
	assert.Equal(t, rsp1.Messages[1].Content, rsp2.Messages[1].Content)
}

func TestSurveyNode(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "survey", Kind: flow.KindSurvey, Data: flow.NodeData{Questions: []flow.SurveyQuestion{
			{Name: "color", Prompt: "Favorite color?"},
			{Name: "size", Prompt: "Preferred size?"},
		}}},
	}, nil)
	e, svc := newEngine(t, g)
	ctx := context.Background()

	rsp := e.ProcessMessage(ctx, "hi", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "Favorite color?")
	assert.Equal(t, "survey", rsp.FlowState.CurrentNode)

	rsp = e.ProcessMessage(ctx, "blue", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "Preferred size?")
	assert.Equal(t, "survey", rsp.FlowState.CurrentNode)

	rsp = e.ProcessMessage(ctx, "large", "sess1", session.UserInfo{})
	assert.True(t, rsp.FlowState.IsCompleted)

	sess, err := svc.GetSession(ctx, "bot1", "sess1")
	require.NoError(t, err)
	assert.Equal(t, "blue", sess.FlowState.Variables["survey.color"])
	assert.Equal(t, "large", sess.FlowState.Variables["survey.size"])
}

func TestHandoffNode(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "handoff", Kind: flow.KindHandoff, Data: flow.NodeData{Reason: "billing_question"}},
	}, nil)
	e, _ := newEngine(t, g)

	rsp := e.ProcessMessage(context.Background(), "I want a human", "sess1", session.UserInfo{})

	assert.Equal(t, ActionHandoff, rsp.Action)
	assert.True(t, rsp.FlowState.IsCompleted)
	assert.Empty(t, rsp.FlowState.CurrentNode)
	assert.Equal(t, "billing_question", rsp.Metadata["reason"])
	assert.Contains(t, rsp.Content, "connect you")
}

func TestWebhookNode(t *testing.T) {
	t.Run("success merges variables", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var envelope map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
			assert.Equal(t, "bot1", envelope["botId"])
			assert.Equal(t, "sess1", envelope["sessionId"])
			assert.Equal(t, "check my order", envelope["userMessage"])
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"message": "Order found.", "variables": {"order_status": "shipped"}}`))
		}))
		defer srv.Close()

		g := flow.New([]*flow.Node{
			{ID: "hook", Kind: flow.KindWebhook, Data: flow.NodeData{URL: srv.URL}},
			{ID: "status", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Status: {{order_status}}"}},
		}, []*flow.Connection{
			{ID: "c1", Source: "hook", Target: "status"},
		})
		e, _ := newEngine(t, g)

		rsp := e.ProcessMessage(context.Background(), "check my order", "sess1", session.UserInfo{})
		assert.Contains(t, rsp.Content, "Order found.")
		assert.Contains(t, rsp.Content, "Status: shipped")
	})

	t.Run("failure invites a retry", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		g := flow.New([]*flow.Node{
			{ID: "hook", Kind: flow.KindWebhook, Data: flow.NodeData{URL: srv.URL}},
		}, nil)
		e, _ := newEngine(t, g)

		rsp := e.ProcessMessage(context.Background(), "check my order", "sess1", session.UserInfo{})
		assert.Contains(t, rsp.Content, webhookFailureMessage)
	})
}

// stubModel returns a fixed completion.
type stubModel struct {
	content string
}

func (m *stubModel) GenerateContent(context.Context, *model.Request) (*model.Response, error) {
	return &model.Response{Content: m.content, Model: "stub"}, nil
}

func (m *stubModel) Info() model.Info {
	return model.Info{Name: "stub"}
}

func TestAIResponseNode(t *testing.T) {
	kb := kbinmemory.New()
	kb.Add(kbinmemory.Document{
		ID: "doc1", Name: "Policies",
		Content: "Refund policy: returns accepted within 30 days.",
	})
	r, err := responder.New(&stubModel{content: "We accept returns within 30 days."},
		responder.WithKnowledgeBase(kb), responder.WithCompanyName("Acme"))
	require.NoError(t, err)
	t.Cleanup(r.Close)

	g := flow.New([]*flow.Node{
		{ID: "ai", Kind: flow.KindAIResponse},
	}, nil)
	e, _ := newEngine(t, g, WithResponder(r))

	rsp := e.ProcessMessage(context.Background(), "what is the refund policy", "sess1", session.UserInfo{})

	assert.Contains(t, rsp.Content, "30 days")
	assert.Equal(t, true, rsp.Metadata["aiGenerated"])
	assert.Equal(t, false, rsp.Metadata["fallback"])
}

func TestCompletedSessionFreeChat(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "bye", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Done."}},
	}, nil)
	e, _ := newEngine(t, g)
	ctx := context.Background()

	rsp := e.ProcessMessage(ctx, "hi", "sess1", session.UserInfo{})
	assert.True(t, rsp.FlowState.IsCompleted)

	// Turns after completion fall back deterministically.
	rsp = e.ProcessMessage(ctx, "hello", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "Hello!")
}

func TestUnknownParkedNodeEndsFlow(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "q", Kind: flow.KindQuestion, Data: flow.NodeData{Content: "Name?"}},
	}, nil)
	svc := inmemory.NewSessionService()
	t.Cleanup(func() { svc.Close() })
	e := New("bot1", g, svc)
	ctx := context.Background()

	// Park the session, then swap in a graph that no longer has the node.
	e.ProcessMessage(ctx, "hi", "sess1", session.UserInfo{})
	e2 := New("bot1", flow.New([]*flow.Node{
		{ID: "other", Kind: flow.KindMessage, Data: flow.NodeData{Content: "x"}},
	}, nil), svc)

	rsp := e2.ProcessMessage(ctx, "Ada", "sess1", session.UserInfo{})
	assert.True(t, rsp.FlowState.IsCompleted)
	assert.Contains(t, rsp.Content, completionMessage)
}

func TestAnalyticsEventNode(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "set", Kind: flow.KindVariable, Data: flow.NodeData{Set: map[string]string{"plan": "Pro"}}},
		{ID: "track", Kind: flow.KindAnalyticsEvent, Data: flow.NodeData{Event: "plan_selected"}},
		{ID: "msg", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Noted."}},
	}, []*flow.Connection{
		{ID: "c1", Source: "set", Target: "track"},
		{ID: "c2", Source: "track", Target: "msg"},
	})
	e, _ := newEngine(t, g)

	rsp := e.ProcessMessage(context.Background(), "hi", "sess1", session.UserInfo{})

	assert.Equal(t, "plan_selected", rsp.Metadata["event"])
	var system *session.Message
	for i := range rsp.Messages {
		if rsp.Messages[i].Sender == session.SenderSystem {
			system = &rsp.Messages[i]
		}
	}
	require.NotNil(t, system, "analytics node records a system message")
	assert.Equal(t, KindAnalyticsEvent, system.Kind)
	// The user never sees the analytics entry.
	assert.Equal(t, "Noted.", rsp.Content)
}

func TestRatingNode(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "rate", Kind: flow.KindRating, Data: flow.NodeData{Content: "Rate us 1-5", Scale: 5}},
	}, nil)
	e, svc := newEngine(t, g)
	ctx := context.Background()

	rsp := e.ProcessMessage(ctx, "hi", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "Rate us 1-5")
	assert.Equal(t, KindRating, rsp.Kind)

	rsp = e.ProcessMessage(ctx, "9", "sess1", session.UserInfo{})
	assert.Contains(t, rsp.Content, "between 1 and 5")
	assert.Equal(t, "rate", rsp.FlowState.CurrentNode)

	rsp = e.ProcessMessage(ctx, "4", "sess1", session.UserInfo{})
	assert.True(t, rsp.FlowState.IsCompleted)

	sess, err := svc.GetSession(ctx, "bot1", "sess1")
	require.NoError(t, err)
	assert.Equal(t, 4, sess.FlowState.Variables["rating"])
}

func TestSaveLeadAction(t *testing.T) {
	g := flow.New([]*flow.Node{
		{ID: "set", Kind: flow.KindVariable, Data: flow.NodeData{Set: map[string]string{
			"email": "a@b.com", "companyName": "Acme",
		}}},
		{ID: "save", Kind: flow.KindAction, Data: flow.NodeData{Action: "save_lead"}},
		{ID: "done", Kind: flow.KindMessage, Data: flow.NodeData{Content: "Thanks!"}},
	}, []*flow.Connection{
		{ID: "c1", Source: "set", Target: "save"},
		{ID: "c2", Source: "save", Target: "done"},
	})
	e, _ := newEngine(t, g)

	rsp := e.ProcessMessage(context.Background(), "hi", "sess1", session.UserInfo{})

	assert.Equal(t, ActionSaveLead, rsp.Action)
	lead, ok := rsp.Metadata["lead"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a@b.com", lead["email"])
	assert.Equal(t, "Acme", lead["company"])
}
