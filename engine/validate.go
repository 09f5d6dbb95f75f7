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
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Input validation for interactive nodes. Every validator returns the
// normalized value to store and whether the raw input passed; a failed
// validation re-prompts and never advances the flow.

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// validateEmail applies the RFC-lite email rule.
func validateEmail(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if !emailRe.MatchString(trimmed) {
		return "", false
	}
	return trimmed, true
}

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

var phoneRe = regexp.MustCompile(`^\+?\d{1,15}$`)

// validatePhone strips common separators and accepts 1-15 digits with an
// optional leading plus.
func validatePhone(input string) (string, bool) {
	stripped := phoneSeparators.Replace(strings.TrimSpace(input))
	if !phoneRe.MatchString(stripped) {
		return "", false
	}
	return stripped, true
}

// validateNumber accepts anything that parses as a float.
func validateNumber(input string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// validateRating accepts an integer in [1, scale].
func validateRating(input string, scale int) (int, bool) {
	if scale <= 0 {
		scale = 5
	}
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > scale {
		return 0, false
	}
	return n, true
}

// dateLayouts are tried in order. Go's parser rejects impossible calendar
// dates, so no separate day-range check is needed.
var dateLayouts = []string{
	"2006-01-02", // YYYY-MM-DD
	"01/02/2006", // MM/DD/YYYY
	"1/2/2006",   // M/D/YYYY
	"2/1/2006",   // D/M/YYYY
	"2006/01/02", // YYYY/MM/DD
}

// validateDate accepts the supported date formats when they parse to a real
// calendar date in years 1900-2100. The normalized value is ISO formatted.
func validateDate(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2100 {
			return "", false
		}
		return t.Format("2006-01-02"), true
	}
	return "", false
}

var (
	time24Re = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)
	time12Re = regexp.MustCompile(`(?i)^(0?[1-9]|1[0-2]):[0-5]\d(:[0-5]\d)?\s*(am|pm)$`)
)

// validateTime accepts HH:MM[:SS] in 24-hour form or 12-hour form with an
// AM/PM suffix.
func validateTime(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if time24Re.MatchString(trimmed) || time12Re.MatchString(trimmed) {
		return trimmed, true
	}
	return "", false
}
