package configs

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shiv669/echo-core-go/internal/config"
)

// deepMergeJSON overlays src onto dst. Objects merge key by key,
// everything else (arrays included) replaces the old value wholesale.
func deepMergeJSON(dst, src interface{}) interface{} {
	patch, patchIsMap := src.(map[string]interface{})
	base, baseIsMap := dst.(map[string]interface{})
	if !patchIsMap || !baseIsMap {
		return src
	}

	merged := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		if prev, exists := merged[k]; exists {
			merged[k] = deepMergeJSON(prev, v)
		} else {
			merged[k] = v
		}
	}
	return merged
}

// analysisSwitchKeys are the accepted spellings of the analysis toggle,
// including the retired enable_summary name.
var analysisSwitchKeys = []string{"enable_analysis", "enableAnalysis", "enable_summary", "enableSummary"}

// shouldEnableAnalysis reports whether the partial update tries to switch AI
// analysis on.
func shouldEnableAnalysis(partial map[string]json.RawMessage) bool {
	raw := partial["ai"]
	if len(bytes.TrimSpace(raw)) == 0 {
		return false
	}
	payload := map[string]interface{}{}
	if json.Unmarshal(raw, &payload) != nil {
		return false
	}
	for _, key := range analysisSwitchKeys {
		if on, ok := parseBoolFromAny(payload[key]); ok && on {
			return true
		}
	}
	return false
}

func hasEnabledAIProvider(list []config.AIProvider) bool {
	for i := range list {
		if list[i].Enabled {
			return true
		}
	}
	return false
}

// parseBoolFromAny reads a bool out of whatever value shape the client sent.
// The second return reports whether the value was recognizable at all.
func parseBoolFromAny(val interface{}) (bool, bool) {
	if b, ok := val.(bool); ok {
		return b, true
	}
	if s, ok := val.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
		return false, false
	}
	if n, ok := boolishNumber(val); ok {
		return n != 0, true
	}
	return false, false
}

func boolishNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// normalizeOptionKey maps an incoming section name (camelCase allowed, retired
// names allowed) onto the canonical snake_case key.
func normalizeOptionKey(name string) string {
	snake := camelToSnakeKey(name)
	if current, ok := sectionKeyAliases[snake]; ok {
		snake = current
	}
	return snake
}

func normalizeJSONKeys(body json.RawMessage, keyFn func(string) string) (json.RawMessage, error) {
	var tree interface{}
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, errors.New("invalid json body")
	}
	return json.Marshal(convertMapKeys(tree, keyFn))
}

func convertMapKeys(node interface{}, keyFn func(string) string) interface{} {
	switch x := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, sub := range x {
			out[keyFn(k)] = convertMapKeys(sub, keyFn)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, sub := range x {
			out[i] = convertMapKeys(sub, keyFn)
		}
		return out
	case *config.FullConfig:
		if x == nil {
			return nil
		}
		return convertMapKeys(asJSONTree(x), keyFn)
	case config.FullConfig:
		return convertMapKeys(asJSONTree(x), keyFn)
	default:
		return x
	}
}

// asJSONTree round-trips a typed config through JSON so the key rewriter can
// walk it as a generic map.
func asJSONTree(v interface{}) map[string]interface{} {
	b, _ := json.Marshal(v)
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	return m
}

func snakeToCamelKey(key string) string {
	parts := strings.Split(key, "_")
	if len(parts) < 2 {
		return key
	}

	var b strings.Builder
	b.Grow(len(key))
	b.WriteString(parts[0])
	for _, seg := range parts[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		lower := strings.ToLower(seg)
		head, width := utf8.DecodeRuneInString(lower)
		b.WriteRune(unicode.ToUpper(head))
		b.WriteString(lower[width:])
	}
	return b.String()
}

func camelToSnakeKey(key string) string {
	runes := []rune(strings.TrimSpace(key))

	var b strings.Builder
	b.Grow(len(runes) + 4)
	for i, ch := range runes {
		if !unicode.IsUpper(ch) {
			b.WriteRune(ch)
			continue
		}
		if i > 0 && startsNewWord(runes, i) {
			b.WriteRune('_')
		}
		b.WriteRune(unicode.ToLower(ch))
	}
	return b.String()
}

// startsNewWord reports whether the upper-case rune at i opens a word: either
// the previous rune ends one, or it heads a capitalized run that is followed
// by lower case (the "URLPath" to "url_path" rule).
func startsNewWord(runes []rune, i int) bool {
	prev := runes[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	return i+1 < len(runes) && unicode.IsLower(runes[i+1])
}
