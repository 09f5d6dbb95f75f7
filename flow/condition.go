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
	"fmt"
	"strconv"
	"strings"
)

// EvalCondition evaluates a predicate against session variables, falling back
// to the last user input when the field is not a known variable.
//
// This is a total function: malformed conditions and non-numeric operands for
// numeric operators evaluate to false, they never abort the turn.
func EvalCondition(cond *Condition, variables map[string]any, lastUserInput string) bool {
	if cond == nil {
		return true
	}
	operand := lastUserInput
	if v, ok := variables[cond.Field]; ok {
		operand = stringify(v)
	}
	switch cond.Operator {
	case OpEquals:
		return strings.EqualFold(strings.TrimSpace(operand), strings.TrimSpace(cond.Value))
	case OpContains:
		return strings.Contains(strings.ToLower(operand), strings.ToLower(cond.Value))
	case OpGreater:
		a, b, ok := parsePair(operand, cond.Value)
		return ok && a > b
	case OpLess:
		a, b, ok := parsePair(operand, cond.Value)
		return ok && a < b
	default:
		return false
	}
}

// parsePair parses both operands as floats; ok is false when either side is
// non-numeric.
func parsePair(left, right string) (float64, float64, bool) {
	a, errA := strconv.ParseFloat(strings.TrimSpace(left), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}

// stringify renders a variable value the way it would appear in a message.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
