//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package responder

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// Fallback produces deterministic replies for common conversational moves
// and for every query the pipeline cannot ground in retrieved context. It is
// also the universal error-recovery response when a pipeline step fails.
type Fallback struct {
	companyName string
	rotation    atomic.Uint64
}

// NewFallback creates a fallback policy for the given company voice.
func NewFallback(companyName string) *Fallback {
	if companyName == "" {
		companyName = "our team"
	}
	return &Fallback{companyName: companyName}
}

type fallbackRule struct {
	pattern *regexp.Regexp
	reply   func(company string) string
}

var fallbackRules = []fallbackRule{
	{
		pattern: regexp.MustCompile(`(?i)^\s*(hi|hello|hey|howdy|good\s+(morning|afternoon|evening))\b`),
		reply: func(company string) string {
			return fmt.Sprintf("Hello! Welcome to %s. How can we help you today?", company)
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(thanks|thank\s+you|thx|appreciate\s+it)\b`),
		reply: func(string) string {
			return "You're welcome! Is there anything else we can help you with?"
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^\s*(bye|goodbye|see\s+you|farewell|good\s+night)\b`),
		reply: func(string) string {
			return "Goodbye! Feel free to reach out whenever you need us."
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^\s*(help|can\s+you\s+help|what\s+can\s+you\s+do)\b`),
		reply: func(string) string {
			return "Of course, we're here to help. What would you like to know?"
		},
	},
}

// noInfoVariants are rotated so repeated ungrounded questions do not read
// robotically identical.
var noInfoVariants = []string{
	"I don't have that information at hand, but our team would be happy to help. Would you like us to connect you?",
	"I'm not able to answer that from the information we have here. Can we help you with something else?",
	"That's not something I have details on right now. Our team can follow up with you directly if you'd like.",
	"I don't have an answer for that, I'm afraid. Is there anything else we can help you with?",
}

// Reply returns the deterministic response for a user message: a
// conversational rule match when one applies, otherwise a rotated
// "don't have that information" variant.
func (f *Fallback) Reply(userMessage string) string {
	trimmed := strings.TrimSpace(userMessage)
	for _, rule := range fallbackRules {
		if rule.pattern.MatchString(trimmed) {
			return rule.reply(f.companyName)
		}
	}
	return f.NoInfo()
}

// NoInfo returns the next "don't have that information" variant.
func (f *Fallback) NoInfo() string {
	n := f.rotation.Add(1)
	return noInfoVariants[int(n-1)%len(noInfoVariants)]
}
