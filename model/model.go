//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package model provides the language-model contract consumed by the
// response generation pipeline.
package model

import "context"

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Message represents a single message in a model conversation.
type Message struct {
	// Role is the role of the message author.
	Role Role `json:"role"`
	// Content is the message content.
	Content string `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Request is a chat completion request.
type Request struct {
	// Messages is the ordered prompt: system prompt, prior turns, current
	// user message.
	Messages []Message `json:"messages"`
	// Temperature bounds sampling randomness when set.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens bounds completion length when set.
	MaxTokens *int `json:"max_tokens,omitempty"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a whole chat completion. The engine consumes complete
// responses; streaming belongs to the channel layer.
type Response struct {
	// Content is the completion text.
	Content string `json:"content"`
	// Model is the serving model name as reported by the provider.
	Model string `json:"model,omitempty"`
	// Usage is the token accounting, when the provider reports it.
	Usage *Usage `json:"usage,omitempty"`
}

// Model is the interface implemented by chat model providers.
type Model interface {
	// GenerateContent produces a completion for the request. Failures are
	// returned as errors; the caller converts them to fallback content.
	GenerateContent(ctx context.Context, request *Request) (*Response, error)
	// Info returns descriptive information about the model.
	Info() Info
}

// Info describes a model instance.
type Info struct {
	// Name is the model name, e.g. "gpt-4o-mini".
	Name string `json:"name"`
}
