package models

// User-facing error strings. Internal error detail is never sent to clients.
const (
	MsgAccountNotFound = "Account not found"
	MsgProfileFailed   = "Failed to fetch profile data"
	MsgVideoFailed     = "Failed to fetch video data"
	MsgInvalidVideoURL = "Invalid TikTok video URL"
)

// APIResponse is the envelope for every /api endpoint.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	SessionStats SessionStats `json:"session_stats"`
	Version      string       `json:"version"`
}

// SessionStats reports the state of the browser session manager.
type SessionStats struct {
	Policy       string `json:"policy"`
	LiveSessions int    `json:"live_sessions"`
	OpenPages    int    `json:"open_pages"`
	Closed       bool   `json:"closed"`
}
