//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package responder

import "regexp"

// internetMarkers flag completions that reference the open internet or the
// model's own training instead of the supplied context. A match discards the
// completion entirely.
var internetMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://`),
	regexp.MustCompile(`(?i)\bwww\.`),
	regexp.MustCompile(`(?i)\b[a-z0-9-]+\.(com|org|net|io|co)\b`),
	regexp.MustCompile(`(?i)search(ing)?\s+(online|the\s+(web|internet))`),
	regexp.MustCompile(`(?i)\bgoogle\s+(it|for)\b`),
	regexp.MustCompile(`(?i)as\s+of\s+my\s+(training|knowledge\s+cutoff)`),
	regexp.MustCompile(`(?i)as\s+an\s+ai\s+(language\s+)?model`),
	regexp.MustCompile(`(?i)\bvisit\s+(their|the\s+official)\s+website\b`),
}

// HasInternetMarkers reports whether a completion references external
// sources and must be replaced by the fallback.
func HasInternetMarkers(text string) bool {
	for _, marker := range internetMarkers {
		if marker.MatchString(text) {
			return true
		}
	}
	return false
}

type personRewrite struct {
	pattern *regexp.Regexp
	repl    string
}

// personRewrites convert third-person company references into first-person
// company voice. Order matters: longer phrases first so shorter patterns do
// not pre-empt them.
var personRewrites = []personRewrite{
	{regexp.MustCompile(`(?i)\bcontact\s+them\s+at\b`), "contact us at"},
	{regexp.MustCompile(`(?i)\breach\s+them\s+at\b`), "reach us at"},
	{regexp.MustCompile(`(?i)\bcontact\s+them\b`), "contact us"},
	{regexp.MustCompile(`(?i)\btheir\s+address\b`), "our address"},
	{regexp.MustCompile(`(?i)\btheir\s+website\b`), "our website"},
	{regexp.MustCompile(`(?i)\btheir\s+team\b`), "our team"},
	{regexp.MustCompile(`(?i)\btheir\s+(products|services|pricing|hours|office)\b`), "our $1"},
	{regexp.MustCompile(`(?i)\bthey\s+offer\b`), "we offer"},
	{regexp.MustCompile(`(?i)\bthey\s+provide\b`), "we provide"},
	{regexp.MustCompile(`(?i)\bthey\s+have\b`), "we have"},
	{regexp.MustCompile(`(?i)\bthey\s+are\b`), "we are"},
	{regexp.MustCompile(`(?i)\bthey\s+sell\b`), "we sell"},
	{regexp.MustCompile(`(?i)\bthey\s+do\s+not\b`), "we do not"},
	{regexp.MustCompile(`(?i)\bthey\s+don't\b`), "we don't"},
	{regexp.MustCompile(`(?i)\bthe\s+company\s+offers\b`), "we offer"},
	{regexp.MustCompile(`(?i)\bthe\s+company\s+provides\b`), "we provide"},
	{regexp.MustCompile(`(?i)\bthe\s+company\s+has\b`), "we have"},
	{regexp.MustCompile(`(?i)\bthe\s+company's\b`), "our"},
}

// EnforceFirstPerson applies the ordered third-person to first-person
// rewrites. This is a best-effort textual normalization, not a semantic
// guarantee; use HasThirdPerson to observe residual violations.
func EnforceFirstPerson(text string) string {
	for _, rw := range personRewrites {
		text = rw.pattern.ReplaceAllString(text, rw.repl)
	}
	return text
}

// residualThirdPerson flags third-person company references that survived
// the rewrite pass. Every phrase matched here must also be matched by a
// personRewrites entry, so a violation means a genuinely novel phrasing.
var residualThirdPerson = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btheir\s+(address|website|team|products|services|pricing|hours|office)\b`),
	regexp.MustCompile(`(?i)\bthey\s+(offer|provide|have|are|sell)\b`),
	regexp.MustCompile(`(?i)\bcontact\s+them\b`),
	regexp.MustCompile(`(?i)\bthe\s+company\s+(offers|provides|has)\b`),
}

// HasThirdPerson reports whether the text still contains third-person
// company references. Violations are logged by the pipeline, never blocked.
func HasThirdPerson(text string) bool {
	for _, pattern := range residualThirdPerson {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
