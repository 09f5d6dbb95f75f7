//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package session provides the core conversation session functionality.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBotIDRequired is the error for bot id required.
	ErrBotIDRequired = errors.New("botID is required")
	// ErrSessionIDRequired is the error for session id required.
	ErrSessionIDRequired = errors.New("sessionID is required")
	// ErrSessionNotFound is the error for a session that does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// Sender identifies the author of a message.
type Sender string

// Sender constants.
const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// Message is a single conversation message. Messages are immutable once
// appended to a session.
type Message struct {
	ID        string         `json:"id"`
	Sender    Sender         `json:"sender"`
	Content   string         `json:"content"`
	Kind      string         `json:"kind"`
	NodeID    string         `json:"nodeId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// UserInfo captures channel-level facts about the end user. It is recorded
// once, on first-message session creation, and never updated afterwards.
type UserInfo struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

// FlowState is the per-session flow interpreter state.
type FlowState struct {
	// CurrentNode is the node the session is parked on; empty when the flow
	// has not started or has completed.
	CurrentNode string `json:"currentNode"`
	// NextNode is the pre-routed follow-up of the parked node, set only when
	// the routing decision is static (one unconditioned outgoing edge).
	NextNode string `json:"nextNode,omitempty"`
	// CompletedNodes is the set of node ids already executed.
	CompletedNodes map[string]bool `json:"completedNodes,omitempty"`
	// Variables is the per-session key/value bag used for interpolation and
	// branching. Keys are added or overwritten over the session lifetime;
	// only an explicit variable node may remove them.
	Variables map[string]any `json:"variables,omitempty"`
	// Context is scratch state private to node handlers (survey progress,
	// webhook status and the like).
	Context map[string]any `json:"context,omitempty"`
	// LoopCount increments each turn and bounds total flow progression.
	LoopCount int `json:"loopCount"`
	// IsCompleted marks a finished flow; further turns only get fallbacks.
	IsCompleted bool `json:"isCompleted"`
}

// Session is the durable per-end-user conversation record.
type Session struct {
	// ID is the stable correlation key supplied by the channel layer.
	ID string `json:"id"`
	// BotID identifies the owning bot definition.
	BotID string `json:"botId"`
	// ConversationID is the engine-assigned conversation identity.
	ConversationID string `json:"conversationId"`
	// Messages is the append-only ordered conversation transcript.
	Messages []Message `json:"messages"`
	// FlowState is the flow interpreter state.
	FlowState FlowState `json:"flowState"`
	// UserInfo is recorded on session creation only.
	UserInfo UserInfo `json:"userInfo"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates a fresh session for the given bot and correlation key.
func New(botID, sessionID string, info UserInfo) *Session {
	now := time.Now()
	return &Session{
		ID:             sessionID,
		BotID:          botID,
		ConversationID: uuid.NewString(),
		FlowState: FlowState{
			CompletedNodes: make(map[string]bool),
			Variables:      make(map[string]any),
			Context:        make(map[string]any),
		},
		UserInfo:  info,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the transcript, assigning an id and timestamp when
// absent, and returns the stored message.
func (s *Session) Append(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
	return msg
}

// LastUserInput returns the content of the most recent user message, or the
// empty string when the user has not spoken yet.
func (s *Session) LastUserInput() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy of the session. Handlers receive the live
// session; Clone exists for services that must hand out isolated copies.
func (s *Session) Clone() *Session {
	copied := *s
	copied.Messages = make([]Message, len(s.Messages))
	copy(copied.Messages, s.Messages)
	copied.FlowState.CompletedNodes = make(map[string]bool, len(s.FlowState.CompletedNodes))
	for k, v := range s.FlowState.CompletedNodes {
		copied.FlowState.CompletedNodes[k] = v
	}
	copied.FlowState.Variables = make(map[string]any, len(s.FlowState.Variables))
	for k, v := range s.FlowState.Variables {
		copied.FlowState.Variables[k] = v
	}
	copied.FlowState.Context = make(map[string]any, len(s.FlowState.Context))
	for k, v := range s.FlowState.Context {
		copied.FlowState.Context[k] = v
	}
	return &copied
}

// Service is the session persistence contract. The engine assumes at most
// one concurrent turn per session id; serializing concurrent requests for
// the same session is the caller's responsibility.
type Service interface {
	// GetSession returns the stored session, or ErrSessionNotFound.
	GetSession(ctx context.Context, botID, sessionID string) (*Session, error)
	// CreateSession stores a new session.
	CreateSession(ctx context.Context, sess *Session) error
	// UpdateSession persists the session state after a turn.
	UpdateSession(ctx context.Context, sess *Session) error
	// Close releases any resources held by the service.
	Close() error
}
