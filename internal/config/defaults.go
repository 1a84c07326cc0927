package config

import (
	"runtime"
	"sort"
	"strings"
)

// Defaults returns the default configuration tree. Durations are integer
// seconds, the form written by Generate.
func Defaults() map[string]any {
	return map[string]any{
		"public": map[string]any{
			"address":  "0.0.0.0:25565",
			"version":  "1.20.3",
			"protocol": 765,
		},
		"server": map[string]any{
			"directory":        ".",
			"command":          "",
			"address":          "127.0.0.1:25566",
			"freeze_process":   true,
			"wake_on_start":    false,
			"wake_on_crash":    false,
			"start_timeout":    300,
			"stop_timeout":     150,
			"send_proxy_v2":    false,
			"env":              []string{},
			"env_files":        []string{},
			"wake_whitelist":   true,
			"block_banned_ips": true,
			"drop_banned_ips":  false,
		},
		"time": map[string]any{
			"sleep_after":     60,
			"min_online_time": 60,
		},
		"motd": map[string]any{
			"sleeping":    "☠ Server is sleeping\n§2☻ Join to start it up",
			"starting":    "§2☻ Server is starting...\n§7⌛ Please wait...",
			"stopping":    "☠ Server going to sleep...\n⌛ Please wait...",
			"from_server": false,
		},
		"join": map[string]any{
			"methods": []string{string(JoinHold), string(JoinKick)},
			"kick": map[string]any{
				"starting": "Server is starting... §c♥§r\n\nThis may take some time.\n\nPlease try to reconnect in a minute.",
				"stopping": "Server is going to sleep... §7☠§r\n\nPlease try to reconnect in a minute to wake it again.",
			},
			"hold": map[string]any{
				"timeout": 25,
			},
			"forward": map[string]any{
				"address":       "127.0.0.1:25565",
				"send_proxy_v2": false,
			},
		},
		"lockout": map[string]any{
			"enabled": false,
			"message": "Server is closed §7☠§r\n\nPlease come back another time.",
		},
		"rcon": map[string]any{
			"enabled":            runtime.GOOS == "windows",
			"port":               25575,
			"password":           "",
			"send_proxy_v2":      false,
			"randomize_password": true,
		},
		"advanced": map[string]any{
			"rewrite_server_properties": true,
		},
		"log": map[string]any{
			"level":        "info",
			"format":       "text",
			"color":        true,
			"timestamps":   true,
			"source":       false,
			"dir":          "",
			"max_size_mb":  10,
			"max_backups":  3,
			"max_age_days": 7,
			"compress":     false,
		},
		"metrics": map[string]any{
			"enabled": false,
			"listen":  "127.0.0.1:9215",
		},
		"api": map[string]any{
			"enabled":   false,
			"listen":    "127.0.0.1:8215",
			"base_path": "/api",
			"auth": map[string]any{
				"enabled":       false,
				"username":      "admin",
				"password_hash": "",
				"jwt_secret":    "",
				"token_ttl":     3600,
			},
			"tls": map[string]any{
				"enabled":       false,
				"cert_file":     "",
				"key_file":      "",
				"dir":           "",
				"auto_generate": false,
				"dns_names":     []string{"localhost", "127.0.0.1"},
				"min_version":   "1.3",
			},
		},
		"history": map[string]any{
			"enabled": false,
			"sinks":   []string{},
		},
		"config": map[string]any{
			"version": Version,
		},
	}
}

// flatten turns a nested tree into dotted keys, sorted for stable iteration.
func flatten(prefix string, tree map[string]any, out map[string]any) []string {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isListKey reports whether the default for key is a list.
func isListKey(key string) bool {
	flat := map[string]any{}
	flatten("", Defaults(), flat)
	_, ok := flat[strings.ToLower(key)].([]string)
	return ok
}
