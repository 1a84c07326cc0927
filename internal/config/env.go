package config

import (
	"strconv"
	"strings"
)

// Environment overlay: DOZER_SERVER__COMMAND sets server.command.
const (
	EnvPrefix    = "DOZER_"
	EnvSeparator = "__"
)

// keyAliases maps accepted alternative keys to their canonical name.
var keyAliases = map[string]string{
	"time.minimum_online_time": "time.min_online_time",
}

// envOverrides extracts DOZER_ variables from environ as dotted keys with
// inferred values. Scalars given for list settings become one-element lists.
func envOverrides(environ []string) map[string]any {
	out := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		rest := strings.TrimPrefix(name, EnvPrefix)
		if rest == "" {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(rest, EnvSeparator, "."))
		if canonical, ok := keyAliases[key]; ok {
			key = canonical
		}
		val := inferValue(value)
		if _, isList := val.([]any); !isList && isListKey(key) {
			val = []any{val}
		}
		out[key] = val
	}
	return out
}

// inferValue types an environment value the way a TOML author would:
// bracketed or comma separated values are lists, then booleans, integers,
// floats (a '.' and no ','), and otherwise strings with \n, \t, \r and \\
// unescaped.
func inferValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		items := []any{}
		for _, item := range strings.Split(trimmed[1:len(trimmed)-1], ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, inferValue(item))
			}
		}
		return items
	}
	if strings.EqualFold(s, "true") {
		return true
	}
	if strings.EqualFold(s, "false") {
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") && !strings.Contains(s, ",") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		items := make([]any, 0, len(parts))
		for _, item := range parts {
			items = append(items, inferValue(strings.TrimSpace(item)))
		}
		return items
	}
	return unescapeBasic(s)
}

func unescapeBasic(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 == len(s) {
			b.WriteByte('\\')
			break
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
