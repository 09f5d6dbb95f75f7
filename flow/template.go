//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package flow

import "regexp"

var tokenRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Interpolate replaces every {{name}} token in template with the stringified
// variable value. Tokens whose variable is absent render as the empty string
// so unresolved placeholders never reach the end user. Side effect free; a
// template without tokens is returned unchanged.
func Interpolate(template string, variables map[string]any) string {
	if template == "" || !tokenRe.MatchString(template) {
		return template
	}
	return tokenRe.ReplaceAllStringFunc(template, func(tok string) string {
		name := tokenRe.FindStringSubmatch(tok)[1]
		v, ok := variables[name]
		if !ok {
			return ""
		}
		return stringify(v)
	})
}
