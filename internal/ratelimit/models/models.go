package models

import (
	"math"
	"strings"
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RetryAfter is the whole number of seconds until the window frees a slot,
// never less than one.
func (r *Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// ExceededResponse is the body of a 429.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// SanitizeKeySegment escapes the key delimiter so a client-supplied value
// cannot address another bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// WriteKey is the bucket for mutating requests from one client.
func WriteKey(clientIP string) string {
	if clientIP == "" {
		clientIP = "unknown"
	}
	return "writes:" + SanitizeKeySegment(clientIP)
}
