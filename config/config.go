//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads bot configuration from YAML with environment
// overrides. A .env file, when present, is loaded once before overrides are
// read.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var loadEnvOnce sync.Once

// BotConfig is the per-bot engine configuration.
type BotConfig struct {
	// Name is the bot display name.
	Name string `yaml:"name"`
	// CompanyName pins the first-person voice of generated answers.
	CompanyName string `yaml:"companyName"`

	// Model settings.
	ModelName   string  `yaml:"modelName"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`

	// Retrieval toggles.
	KnowledgeBaseEnabled bool `yaml:"knowledgeBaseEnabled"`
	WebCacheEnabled      bool `yaml:"webCacheEnabled"`
	RetrievalTopK        int  `yaml:"retrievalTopK"`

	// MaxPassthroughHops bounds the pass-through loop within one turn.
	MaxPassthroughHops int `yaml:"maxPassthroughHops"`
	// MaxLoopCount bounds total turns per session.
	MaxLoopCount int `yaml:"maxLoopCount"`

	// FallbackMessage is the generic recovery message for unrecoverable
	// turn failures. Empty selects the built-in default.
	FallbackMessage string `yaml:"fallbackMessage"`

	// LogLevel configures the process logger: debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() BotConfig {
	return BotConfig{
		Name:                 "Assistant",
		CompanyName:          "our company",
		ModelName:            "gpt-4o-mini",
		Temperature:          0.3,
		MaxTokens:            500,
		KnowledgeBaseEnabled: true,
		WebCacheEnabled:      false,
		RetrievalTopK:        3,
		MaxPassthroughHops:   20,
		MaxLoopCount:         1000,
		LogLevel:             "info",
	}
}

// Load reads the YAML configuration file and applies environment overrides.
// A missing file yields the defaults with overrides applied.
func Load(path string) (BotConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides configuration from the environment. BOTFLOW_* variables
// win over YAML values.
func applyEnv(cfg *BotConfig) {
	loadEnvOnce.Do(func() {
		// Absence of a .env file is the normal case.
		_ = godotenv.Load()
	})
	if v := os.Getenv("BOTFLOW_MODEL_NAME"); v != "" {
		cfg.ModelName = v
	}
	if v := os.Getenv("BOTFLOW_COMPANY_NAME"); v != "" {
		cfg.CompanyName = v
	}
	if v := os.Getenv("BOTFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BOTFLOW_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = f
		}
	}
	if v := os.Getenv("BOTFLOW_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("BOTFLOW_MAX_PASSTHROUGH_HOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPassthroughHops = n
		}
	}
}
