package config

import "strings"

// Keys whose values never appear unmasked in CLI output.
var secretKeys = map[string]bool{
	"provider.api_key": true,
	"telegram.token":   true,
}

// IsSecretKey reports whether the dot-separated key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns a nested JSON-shaped map into a single level keyed by
// dot-separated paths: {"provider": {"api_key": k}} becomes
// {"provider.api_key": k}. Non-map values (including arrays) are leaves.
func Flatten(nested map[string]any) map[string]any {
	flat := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(path, child)
				continue
			}
			flat[path] = v
		}
	}
	walk("", nested)
	return flat
}

// Unflatten rebuilds the nested shape from dot-separated keys. A leaf
// colliding with an intermediate node is overwritten by the node.
func Unflatten(flat map[string]any) map[string]any {
	nested := make(map[string]any)
	for path, v := range flat {
		parts := strings.Split(path, ".")
		node := nested
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return nested
}

// MaskSecrets copies the flat map, replacing each secret value with
// "***" plus its last four characters. Empty secrets pass through
// unchanged so unset keys stay visibly unset.
func MaskSecrets(flat map[string]any) map[string]any {
	masked := make(map[string]any, len(flat))
	for k, v := range flat {
		masked[k] = v
		if !secretKeys[k] {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		tail := s
		if len(s) > 4 {
			tail = s[len(s)-4:]
		}
		masked[k] = "***" + tail
	}
	return masked
}
