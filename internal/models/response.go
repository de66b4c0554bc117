package models

// APIStatus represents the status field of an API response envelope.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusScheduled indicates a trigger was accepted for future delivery.
	APIStatusScheduled APIStatus = "scheduled"
	// APIStatusIgnored indicates a webhook payload was accepted but not routed.
	APIStatusIgnored APIStatus = "ignored"
)

// APIResponse is the standard JSON envelope returned by every endpoint.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Scheduled creates a response for an accepted trigger.
func Scheduled(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusScheduled), Result: result}
}

// Ignored creates a response for a webhook that was received but carried
// nothing to route.
func Ignored(message string) APIResponse {
	return APIResponse{Status: string(APIStatusIgnored), Message: message}
}
