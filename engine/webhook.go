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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-botflow-go/flow"
	"trpc.group/trpc-go/trpc-botflow-go/session"
)

// webhookTimeout bounds the outbound call; the node handler converts any
// failure into a retry-invitation message, never a turn abort.
const webhookTimeout = 10 * time.Second

// maxWebhookBody caps how much of a response body is read.
const maxWebhookBody = 1 << 20

// webhookEnvelope is the fixed request payload sent to webhook endpoints.
type webhookEnvelope struct {
	BotID          string         `json:"botId"`
	ConversationID string         `json:"conversationId"`
	SessionID      string         `json:"sessionId"`
	UserMessage    string         `json:"userMessage"`
	Variables      map[string]any `json:"variables"`
	Timestamp      time.Time      `json:"timestamp"`
}

// webhookReply is the accepted response shape. Both fields are optional.
type webhookReply struct {
	// Message replaces the node content when non-empty.
	Message string `json:"message"`
	// Variables are merged into session variables.
	Variables map[string]any `json:"variables"`
}

// webhookClient invokes external HTTP endpoints for webhook nodes.
type webhookClient struct {
	httpClient *http.Client
}

func newWebhookClient(httpClient *http.Client) *webhookClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: webhookTimeout}
	}
	return &webhookClient{httpClient: httpClient}
}

// invoke posts the envelope to the node's endpoint and decodes the reply.
func (c *webhookClient) invoke(ctx context.Context, node *flow.Node, sess *session.Session, userMessage string) (*webhookReply, error) {
	if node.Data.URL == "" {
		return nil, fmt.Errorf("webhook node %s has no url", node.ID)
	}
	method := node.Data.Method
	if method == "" {
		method = http.MethodPost
	}

	payload, err := json.Marshal(webhookEnvelope{
		BotID:          sess.BotID,
		ConversationID: sess.ConversationID,
		SessionID:      sess.ID,
		UserMessage:    userMessage,
		Variables:      sess.FlowState.Variables,
		Timestamp:      time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, node.Data.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range node.Data.Headers {
		req.Header.Set(k, v)
	}

	rsp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook call failed: %w", err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook returned status %d", rsp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(rsp.Body, maxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}
	var reply webhookReply
	if len(body) > 0 {
		if err := json.Unmarshal(body, &reply); err != nil {
			return nil, fmt.Errorf("malformed webhook response: %w", err)
		}
	}
	return &reply, nil
}
