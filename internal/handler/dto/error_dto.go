package dto

import "time"

type APIErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// GateErrorResponse is the denial body written by the request gate itself:
// a generic human message, an ISO-8601 timestamp, and the HTTP status.
type GateErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
}

func NewGateError(message string, status int, now time.Time) GateErrorResponse {
	return GateErrorResponse{
		Error:     message,
		Timestamp: now.UTC().Format(time.RFC3339),
		Status:    status,
	}
}
