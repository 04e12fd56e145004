package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseable is returned when a model response survives no decode stage.
var ErrUnparseable = errors.New("classify: unparseable model response")

// Stage names the decoder stage that produced items.
type Stage string

const (
	StageDirect     Stage = "direct"
	StageBracket    Stage = "bracket"
	StageTruncation Stage = "truncation"
	StageSalvage    Stage = "salvage"
)

var (
	arrayRe   = regexp.MustCompile(`\[[\s\S]*\]`)
	fenceRe   = regexp.MustCompile("```(?:json)?")
	salvageRe = regexp.MustCompile(`\{\s*"id"\s*:\s*"?(\d+)"?\s*,\s*"tag"\s*:\s*"([^"]+)"\s*,\s*"confidence"\s*:\s*(\d+(?:\.\d+)?)`)
)

// item is one decoded model decision.
type item struct {
	ID         int
	Tag        string
	Confidence float64
	Reasoning  string
}

// decode runs the staged parser over a model response.
func decode(text string) ([]item, Stage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", ErrUnparseable
	}
	if items, ok := decodeJSON(text); ok {
		return items, StageDirect, nil
	}
	if m := arrayRe.FindString(text); m != "" {
		if items, ok := decodeJSON(m); ok {
			return items, StageBracket, nil
		}
	}
	if fixed, ok := repairTruncated(text); ok {
		if items, ok := decodeJSON(fixed); ok {
			return items, StageTruncation, nil
		}
	}
	if items := salvage(text); len(items) > 0 {
		return items, StageSalvage, nil
	}
	return nil, "", ErrUnparseable
}

// decodeJSON accepts a bare array or an object wrapping one.
func decodeJSON(text string) ([]item, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		for _, key := range []string{"items", "results", "classifications", "paragraphs"} {
			if arr, ok := v[key].([]any); ok {
				list = arr
				break
			}
		}
		if list == nil {
			for _, val := range v {
				if arr, ok := val.([]any); ok {
					list = arr
					break
				}
			}
		}
		if list == nil {
			return nil, false
		}
	default:
		return nil, false
	}

	out := make([]item, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		it, ok := itemFromMap(m)
		if ok {
			out = append(out, it)
		}
	}
	return out, true
}

func itemFromMap(m map[string]any) (item, bool) {
	id, ok := toInt(m["id"])
	if !ok {
		return item{}, false
	}
	it := item{ID: id}
	if s, ok := m["tag"].(string); ok {
		it.Tag = s
	}
	if c, ok := confidenceOf(m["confidence"]); ok {
		it.Confidence = c
	}
	if s, ok := m["reasoning"].(string); ok {
		it.Reasoning = s
	}
	return it, true
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return int(f), err == nil && f == math.Trunc(f)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}

func confidenceOf(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		return unitConfidence(x.String())
	case string:
		return unitConfidence(x)
	}
	return 0, false
}

// unitConfidence maps a confidence literal to [0,1]. Integers and "%" values
// are on the 0-100 scale the prompt asks for, so 1 is 1%. Fractions at or
// below 1 are already unit scores.
func unitConfidence(lit string) (float64, bool) {
	lit = strings.TrimSpace(lit)
	percent := strings.HasSuffix(lit, "%")
	lit = strings.TrimSpace(strings.TrimSuffix(lit, "%"))
	c, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.IsNaN(c) {
		return 0, false
	}
	if percent || !strings.ContainsAny(lit, ".eE") || c > 1 {
		c /= 100
	}
	return math.Max(0, math.Min(1, c)), true
}

// repairTruncated closes an array cut off mid-object.
func repairTruncated(text string) (string, bool) {
	s := strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
	start := strings.Index(s, "[")
	if start < 0 {
		return "", false
	}
	s = s[start:]
	if i := strings.LastIndex(s, "},"); i >= 0 {
		return s[:i+1] + "]", true
	}
	if i := strings.LastIndex(s, "}"); i >= 0 {
		return s[:i+1] + "]", true
	}
	return "", false
}

func salvage(text string) []item {
	var out []item
	for _, m := range salvageRe.FindAllStringSubmatch(text, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		c, _ := unitConfidence(m[3])
		out = append(out, item{ID: id, Tag: m[2], Confidence: c})
	}
	return out
}
