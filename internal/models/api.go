package models

// InboundMessage is one webhook delivery from the messaging gateway.
type InboundMessage struct {
	From             string `json:"from"`
	Body             string `json:"body"`
	MediaURL         string `json:"media_url,omitempty"`
	MediaContentType string `json:"media_content_type,omitempty"`
	Time             int64  `json:"time"`
}

// HasMedia reports whether the delivery carried a first attachment.
func (m InboundMessage) HasMedia() bool {
	return m.MediaURL != ""
}

// APIResponse is the standard JSON envelope for REST endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with a result payload.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// SuccessWithMessage creates a successful API response with a message and payload.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: "ok", Message: message, Result: result}
}

// Error creates an error API response.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
