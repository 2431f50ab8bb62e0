// Package extract parses free-text WhatsApp messages into candidate
// structured fields for the conversational flows.
//
// Every function is best-effort and pure: absence of a match yields nil for
// that field, malformed fragments never produce an error, and no field's
// extraction can disturb another's.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/labflowhq/labflow/internal/models"
)

// testTypeSynonyms maps lowercased message tokens to canonical test types.
// Constructed once at process start and never mutated.
var testTypeSynonyms = map[string]models.TestType{
	"blood": models.TestTypeBlood,
	"xray":  models.TestTypeXRay,
	"x-ray": models.TestTypeXRay,
	"mri":   models.TestTypeMRI,
	"ct":    models.TestTypeCT,
	"urine": models.TestTypeUrine,
	"ecg":   models.TestTypeECG,
}

// relativeDatePhrases resolve against the current date. Longer phrases are
// listed first so "day after tomorrow" is not shadowed by "tomorrow".
var relativeDatePhrases = []struct {
	phrase string
	days   int
}{
	{"day after tomorrow", 2},
	{"tomorrow", 1},
	{"today", 0},
}

// timeKeywords map approximate times of day to fixed clock times.
var timeKeywords = map[string]string{
	"morning":   "09:00:00",
	"afternoon": "14:00:00",
	"evening":   "18:00:00",
	"night":     "20:00:00",
}

var (
	explicitDateRe = regexp.MustCompile(`(?i)\b(\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?|\d{4}-\d{2}-\d{2}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s\d{1,2}(?:,\s?\d{4})?)\b`)
	explicitTimeRe = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s?(?:am|pm)?\b`)
	monthNameRe    = regexp.MustCompile(`(?i)^([a-z]+)\s(\d{1,2})(,\s?(\d{4}))?$`)
	meridiemRe     = regexp.MustCompile(`(?i)(am|pm)`)
)

// dateLayouts are tried in priority order; the first strictly valid parse wins.
var dateLayouts = []string{
	"02/01/2006", // DD/MM/YYYY
	"01/02/2006", // MM/DD/YYYY
	"2006-01-02",
	"2 Jan 2006",
	"Jan 2, 2006",
	"02-01-2006", // DD-MM-YYYY
}

// Fields holds the independent candidate values extracted from one message.
type Fields struct {
	TestType *models.TestType
	Date     *string // YYYY-MM-DD
	Time     *string // HH:mm:ss
	YesNo    *bool
}

// Message runs all extractors over one message. now anchors relative dates.
func Message(body string, now time.Time) Fields {
	return Fields{
		TestType: TestType(body),
		Date:     Date(body, now),
		Time:     Time(body),
		YesNo:    YesNo(body),
	}
}

// TestType scans whitespace-separated tokens for the first recognized test
// type synonym. Matching is case-insensitive; no further normalization.
func TestType(body string) *models.TestType {
	for _, word := range strings.Fields(strings.ToLower(body)) {
		if t, ok := testTypeSynonyms[word]; ok {
			return &t
		}
	}
	return nil
}

// Date resolves the test/report date from a message. Relative keywords are
// scanned first, but an explicit date pattern, when present and valid,
// overrides the keyword-derived value.
func Date(body string, now time.Time) *string {
	var result *string

	lower := strings.ToLower(body)
	for _, rel := range relativeDatePhrases {
		if strings.Contains(lower, rel.phrase) {
			d := now.AddDate(0, 0, rel.days).Format("2006-01-02")
			result = &d
			break
		}
	}

	if m := explicitDateRe.FindString(body); m != "" {
		if parsed := parseExplicitDate(m); parsed != nil {
			result = parsed
		}
	}

	return result
}

// parseExplicitDate tries the supported layouts in priority order and
// normalizes the first valid parse to YYYY-MM-DD.
func parseExplicitDate(raw string) *string {
	candidate := raw
	if mm := monthNameRe.FindStringSubmatch(raw); mm != nil {
		// Canonicalize month-name forms ("march 20" -> "Mar 20") so the
		// fixed layouts apply regardless of case or month spelling.
		month := strings.ToUpper(mm[1][:1]) + strings.ToLower(mm[1][1:])
		if len(month) > 3 {
			month = month[:3]
		}
		if mm[4] != "" {
			candidate = month + " " + mm[2] + ", " + mm[4]
		} else {
			candidate = mm[2] + " " + month
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			d := t.Format("2006-01-02")
			return &d
		}
	}
	return nil
}

// Time resolves the clock time from a message. Approximate keywords
// ("morning", "evening") are checked first; an explicit pattern such as
// "9AM", "10:30 pm" or "14:30" overrides them. Digits that belong to an
// explicit date pattern in the same message are never read as a time, so
// date and time extraction stay independent within one message.
func Time(body string) *string {
	var result *string

	for _, word := range strings.Fields(strings.ToLower(body)) {
		if t, ok := timeKeywords[word]; ok {
			result = &t
			break
		}
	}

	dateSpans := explicitDateRe.FindAllStringIndex(body, -1)
	for _, span := range explicitTimeRe.FindAllStringIndex(body, -1) {
		if overlapsAny(span, dateSpans) {
			continue
		}
		if t := parseExplicitTime(body[span[0]:span[1]]); t != nil {
			result = t
			break
		}
	}

	return result
}

// parseExplicitTime normalizes one matched fragment to HH:mm:ss.
func parseExplicitTime(raw string) *string {
	compact := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))

	if meridiemRe.MatchString(compact) {
		for _, layout := range []string{"3PM", "3:04PM"} {
			if t, err := time.Parse(layout, compact); err == nil {
				s := t.Format("15:04:05")
				return &s
			}
		}
		return nil
	}

	if strings.Contains(compact, ":") {
		if t, err := time.Parse("15:04", compact); err == nil {
			s := t.Format("15:04:05")
			return &s
		}
		return nil
	}

	// Bare hour, 24h interpretation.
	if hour, err := strconv.Atoi(compact); err == nil && hour >= 0 && hour <= 23 {
		s := time.Date(0, 1, 1, hour, 0, 0, 0, time.UTC).Format("15:04:05")
		return &s
	}
	return nil
}

// YesNo recognizes a bare affirmative or negative message.
func YesNo(body string) *bool {
	switch strings.ToUpper(strings.TrimSpace(body)) {
	case "YES":
		v := true
		return &v
	case "NO":
		v := false
		return &v
	}
	return nil
}

func overlapsAny(span []int, others [][]int) bool {
	for _, o := range others {
		if span[0] < o[1] && o[0] < span[1] {
			return true
		}
	}
	return false
}
