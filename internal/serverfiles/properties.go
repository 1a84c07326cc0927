// Package serverfiles reads and maintains the files a Minecraft server keeps
// in its directory: server.properties, whitelist.json and banned-ips.json.
package serverfiles

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
)

const (
	PropertiesFile = "server.properties"
	WhitelistFile  = "whitelist.json"
	BannedIPsFile  = "banned-ips.json"
)

// ReadProperties parses a server.properties file. Comments and blank lines
// are skipped.
func ReadProperties(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	props := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := splitProperty(sc.Text())
		if ok {
			props[key] = unescape(value)
		}
	}
	return props, sc.Err()
}

// RewriteProperties sets values in the properties file at path, keeping
// comments and key order and appending keys that are missing. The file is
// only written when a value actually changes. A missing file is left alone.
func RewriteProperties(path string, values map[string]string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	pending := make(map[string]string, len(values))
	for k, v := range values {
		pending[k] = v
	}

	var out []string
	changed := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		key, value, ok := splitProperty(line)
		want, set := pending[key]
		if !ok || !set {
			out = append(out, line)
			continue
		}
		delete(pending, key)
		if unescape(value) == want {
			out = append(out, line)
			continue
		}
		out = append(out, key+"="+escape(want))
		changed = true
	}
	if err := sc.Err(); err != nil {
		return false, err
	}

	missing := make([]string, 0, len(pending))
	for k := range pending {
		missing = append(missing, k)
	}
	sort.Strings(missing)
	for _, k := range missing {
		out = append(out, k+"="+escape(pending[k]))
		changed = true
	}
	if !changed {
		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(strings.Join(out, "\n")+"\n"), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

func splitProperty(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
		return "", "", false
	}
	i := strings.IndexAny(trimmed, "=:")
	if i < 0 {
		return trimmed, "", true
	}
	return strings.TrimSpace(trimmed[:i]), strings.TrimSpace(trimmed[i+1:]), true
}

var (
	escaper   = strings.NewReplacer(`\`, `\\`, `=`, `\=`, `:`, `\:`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\=`, `=`, `\:`, `:`)
)

func escape(s string) string   { return escaper.Replace(s) }
func unescape(s string) string { return unescaper.Replace(s) }
