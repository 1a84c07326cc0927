package config

import (
	"os"
	"path/filepath"
	"strings"
)

// loadEnvFile parses a simple .env file with KEY=VALUE lines, keeping file
// order. Lines starting with # are ignored, an "export " prefix is dropped and
// one pair of surrounding quotes is removed from values.
func loadEnvFile(path string) ([][2]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := cutPair(line)
		if !ok {
			continue
		}
		if n := len(v); n >= 2 && (v[0] == '"' && v[n-1] == '"' || v[0] == '\'' && v[n-1] == '\'') {
			v = v[1 : n-1]
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}

func cutPair(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}
