//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-botflow-go/session"
)

func TestCreateAndGetSession(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()
	ctx := context.Background()

	sess := session.New("bot1", "sess1", session.UserInfo{Locale: "en-GB"})
	sess.FlowState.Variables["name"] = "Ada"
	require.NoError(t, svc.CreateSession(ctx, sess))

	got, err := svc.GetSession(ctx, "bot1", "sess1")
	require.NoError(t, err)
	assert.Equal(t, "sess1", got.ID)
	assert.Equal(t, "en-GB", got.UserInfo.Locale)
	assert.Equal(t, "Ada", got.FlowState.Variables["name"])

	// The stored copy is isolated from both the original and the returned one.
	sess.FlowState.Variables["name"] = "Grace"
	got.FlowState.Variables["name"] = "Alan"
	again, err := svc.GetSession(ctx, "bot1", "sess1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.FlowState.Variables["name"])
}

func TestGetSessionNotFound(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()

	_, err := svc.GetSession(context.Background(), "bot1", "nope")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestSessionIDValidation(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.GetSession(ctx, "", "sess1")
	assert.ErrorIs(t, err, session.ErrBotIDRequired)
	_, err = svc.GetSession(ctx, "bot1", "")
	assert.ErrorIs(t, err, session.ErrSessionIDRequired)

	err = svc.CreateSession(ctx, session.New("", "sess1", session.UserInfo{}))
	assert.ErrorIs(t, err, session.ErrBotIDRequired)
	err = svc.UpdateSession(ctx, session.New("bot1", "", session.UserInfo{}))
	assert.ErrorIs(t, err, session.ErrSessionIDRequired)
}

func TestUpdateSessionOverwrites(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()
	ctx := context.Background()

	sess := session.New("bot1", "sess1", session.UserInfo{})
	require.NoError(t, svc.CreateSession(ctx, sess))

	sess.FlowState.CurrentNode = "ask-email"
	require.NoError(t, svc.UpdateSession(ctx, sess))

	got, err := svc.GetSession(ctx, "bot1", "sess1")
	require.NoError(t, err)
	assert.Equal(t, "ask-email", got.FlowState.CurrentNode)
}

func TestSessionTTLExpiry(t *testing.T) {
	svc := NewSessionService(WithSessionTTL(10 * time.Millisecond))
	defer svc.Close()
	ctx := context.Background()

	require.NoError(t, svc.CreateSession(ctx, session.New("bot1", "sess1", session.UserInfo{})))
	_, err := svc.GetSession(ctx, "bot1", "sess1")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = svc.GetSession(ctx, "bot1", "sess1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestCloseIdempotent(t *testing.T) {
	svc := NewSessionService(WithSessionTTL(time.Minute), WithCleanupInterval(time.Millisecond))
	assert.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}
