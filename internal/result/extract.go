// Package result turns a session's captured output into typed outcomes.
//
// Every extractor runs an ordered chain of strategies. The canonical strategy
// decodes a single delimited JSON block:
//
//	---JSON_OUTPUT---
//	{"complete": true, "pr_number": 42, "branch": "feat/x", "error": null}
//	---END_JSON---
//
// When the block is missing or malformed the chain falls back to legacy
// "KEY: value" labels and, for PR numbers, to free-text mentions and hosting
// URLs. Strategies are pure functions of the text and report "not found"
// instead of failing, so callers always have a not-done fallback.
package result

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Strategy names the extraction strategy that produced an outcome.
type Strategy string

const (
	StrategyNone    Strategy = ""
	StrategyJSON    Strategy = "json"
	StrategyLegacy  Strategy = "legacy"
	StrategyMention Strategy = "mention"
	StrategyURL     Strategy = "url"
)

// step is one link of a strategy chain.
type step[T any] struct {
	name    Strategy
	extract func(text string) (T, bool)
}

// run returns the first successful extraction in chain order.
func run[T any](text string, chain []step[T]) (T, Strategy, bool) {
	for _, s := range chain {
		if v, ok := s.extract(text); ok {
			return v, s.name, true
		}
	}
	var zero T
	return zero, StrategyNone, false
}

var jsonBlockRe = regexp.MustCompile(`(?s)---JSON_OUTPUT---\s*(\{.*?\})\s*---END_JSON---`)

// findBlock returns the first delimited JSON block when it is valid JSON.
func findBlock(text string) (gjson.Result, bool) {
	m := jsonBlockRe.FindStringSubmatch(text)
	if m == nil || !gjson.Valid(m[1]) {
		return gjson.Result{}, false
	}
	return gjson.Parse(m[1]), true
}

// ExtractJSON decodes the delimited JSON block in text. It returns false when
// the block is missing or malformed.
func ExtractJSON(text string) (map[string]any, bool) {
	m := jsonBlockRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(m[1]), &out); err != nil {
		return nil, false
	}
	return out, true
}

// LabelValue returns the first whitespace-delimited token after "key:".
func LabelValue(text, key string) (string, bool) {
	re := regexp.MustCompile(regexp.QuoteMeta(key) + `:\s*(\S+)`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var digitsRe = regexp.MustCompile(`\d+`)

// LabelInt returns the first run of digits in the value of "key:".
func LabelInt(text, key string) (int, bool) {
	v, ok := LabelValue(text, key)
	if !ok {
		return 0, false
	}
	d := digitsRe.FindString(v)
	if d == "" {
		return 0, false
	}
	n, err := strconv.Atoi(d)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LabelBool reports whether "key:" is followed by a true-ish token.
func LabelBool(text, key string) (value, ok bool) {
	v, found := LabelValue(text, key)
	if !found {
		return false, false
	}
	switch strings.ToLower(strings.Trim(v, `"',.`)) {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	}
	return false, false
}

var (
	prMentionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:PR|Pull Request|Created PR|Opened PR|merged PR)\s*#(\d+)`),
		regexp.MustCompile(`(?i)(?:PR|Pull Request)\s+(\d+)`),
		regexp.MustCompile(`(?i)#(\d+)\s+(?:created|opened|merged)`),
	}
	prURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`github\.com/[^/\s]+/[^/\s]+/pull/(\d+)`),
		regexp.MustCompile(`/-/merge_requests/(\d+)`),
	}
)

// PRNumber extracts the number of the change-set a session created.
func PRNumber(text string) (int, Strategy, bool) {
	return run(text, prNumberChain)
}

var prNumberChain = []step[int]{
	{StrategyJSON, func(text string) (int, bool) {
		block, ok := findBlock(text)
		if !ok {
			return 0, false
		}
		return positiveInt(block.Get("pr_number"))
	}},
	{StrategyLegacy, func(text string) (int, bool) {
		return LabelInt(text, "PR_NUMBER")
	}},
	{StrategyMention, func(text string) (int, bool) {
		return firstNumber(text, prMentionPatterns)
	}},
	{StrategyURL, func(text string) (int, bool) {
		return firstNumber(text, prURLPatterns)
	}},
}

func firstNumber(text string, patterns []*regexp.Regexp) (int, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

// positiveInt reads numbers and numeric strings such as "#42".
func positiveInt(r gjson.Result) (int, bool) {
	switch r.Type {
	case gjson.Number:
		if n := int(r.Int()); n > 0 {
			return n, true
		}
	case gjson.String:
		if d := digitsRe.FindString(r.Str); d != "" {
			if n, err := strconv.Atoi(d); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

// nullableString returns "" for JSON null and missing fields.
func nullableString(r gjson.Result) string {
	if r.Type == gjson.Null {
		return ""
	}
	return r.String()
}
