//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package openai

import openaiopt "github.com/openai/openai-go/option"

type options struct {
	apiKey         string
	baseURL        string
	requestOptions []openaiopt.RequestOption
}

// Option configures the OpenAI model.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL sets the API base URL, for OpenAI-compatible providers.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithRequestOptions appends raw openai-go request options.
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}
