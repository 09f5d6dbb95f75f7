//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	data := []byte(`{
		"nodes": [
			{"id": "n1", "kind": "start"},
			{"id": "n2", "kind": "message", "data": {"content": "Welcome!"}},
			{"id": "n3", "kind": "question", "data": {"content": "Name?", "variableName": "name"}}
		],
		"connections": [
			{"id": "c1", "source": "n1", "target": "n2"},
			{"id": "c2", "source": "n2", "target": "n3"}
		]
	}`)
	g, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, 3, g.NodeCount())

	n2, ok := g.Node("n2")
	require.True(t, ok)
	assert.Equal(t, KindMessage, n2.Kind)
	assert.Equal(t, "Welcome!", n2.Data.Content)

	conns := g.ConnectionsFrom("n1")
	require.Len(t, conns, 1)
	assert.Equal(t, "n2", conns[0].Target)
}

func TestLoadInvalidJSON(t *testing.T) {
	_, err := Load([]byte(`{nodes:`))
	assert.Error(t, err)
}

func TestStartNode(t *testing.T) {
	t.Run("explicit start node", func(t *testing.T) {
		g := New([]*Node{
			{ID: "a", Kind: KindMessage},
			{ID: "b", Kind: KindStart},
		}, nil)
		require.NotNil(t, g.StartNode())
		assert.Equal(t, "b", g.StartNode().ID)
	})

	t.Run("no inbound connections wins", func(t *testing.T) {
		g := New([]*Node{
			{ID: "a", Kind: KindMessage},
			{ID: "b", Kind: KindMessage},
		}, []*Connection{
			{ID: "c", Source: "a", Target: "b"},
		})
		assert.Equal(t, "a", g.StartNode().ID)
	})

	t.Run("cycle falls back to first declared", func(t *testing.T) {
		g := New([]*Node{
			{ID: "a", Kind: KindMessage},
			{ID: "b", Kind: KindMessage},
		}, []*Connection{
			{ID: "c1", Source: "a", Target: "b"},
			{ID: "c2", Source: "b", Target: "a"},
		})
		assert.Equal(t, "a", g.StartNode().ID)
	})

	t.Run("empty graph", func(t *testing.T) {
		g := New(nil, nil)
		assert.Nil(t, g.StartNode())
	})
}

func TestIsInteractive(t *testing.T) {
	assert.True(t, KindQuestion.IsInteractive())
	assert.True(t, KindEmailInput.IsInteractive())
	assert.True(t, KindSurvey.IsInteractive())
	assert.False(t, KindMessage.IsInteractive())
	assert.False(t, KindCondition.IsInteractive())
	assert.False(t, KindAIResponse.IsInteractive())
	assert.False(t, KindHandoff.IsInteractive())
}
