package server

// ChatRequest represents the request payload for a chat turn.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
	EnableSearch   bool   `json:"enable_search,omitempty"`
}

// ChatResponse represents the completed assistant turn.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Model          string `json:"model"`
	Timestamp      string `json:"timestamp"`
}

// ConversationResponse represents a conversation record.
type ConversationResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Model     *string `json:"model"`
}

// MessageResponse represents a stored message.
type MessageResponse struct {
	ID             int64   `json:"id"`
	ConversationID string  `json:"conversation_id"`
	Role           string  `json:"role"`
	Content        string  `json:"content"`
	Timestamp      string  `json:"timestamp"`
	Model          *string `json:"model"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is a simple confirmation payload.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
