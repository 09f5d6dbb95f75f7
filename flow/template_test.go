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
)

func TestInterpolate(t *testing.T) {
	vars := map[string]any{
		"name":  "Ada",
		"seats": 12,
		"score": 4.5,
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"no tokens unchanged", "Hello there!", "Hello there!"},
		{"empty template", "", ""},
		{"single token", "Hello {{name}}!", "Hello Ada!"},
		{"token with spaces", "Hello {{ name }}!", "Hello Ada!"},
		{"int variable", "You have {{seats}} seats", "You have 12 seats"},
		{"float variable", "Score: {{score}}", "Score: 4.5"},
		{"missing variable renders empty", "Hi {{unknown}}!", "Hi !"},
		{"multiple tokens", "{{name}} has {{seats}} seats", "Ada has 12 seats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.template, vars))
		})
	}
}
