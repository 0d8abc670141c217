package transport

import "strings"

// NormalizeEndpoint maps a skill's HTTP endpoint onto its websocket equivalent:
// http→ws and https→wss. Any other scheme is returned unchanged.
func NormalizeEndpoint(endpoint string) string {
	switch {
	case hasSchemePrefix(endpoint, "https://"):
		return "wss://" + endpoint[len("https://"):]
	case hasSchemePrefix(endpoint, "http://"):
		return "ws://" + endpoint[len("http://"):]
	default:
		return endpoint
	}
}

func hasSchemePrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
