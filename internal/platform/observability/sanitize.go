package observability

import "strings"

const defaultStringLimit = 256

// sanitizeString trims control characters and bounds the value length.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}

// SanitizeRoute normalises a route pattern for logging.
func SanitizeRoute(route string) string {
	route = sanitizeString(route, 128)
	if route == "" {
		return "/"
	}
	return route
}

// SanitizeMethod normalises an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(strings.ToUpper(method), 16)
}
