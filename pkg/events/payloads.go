package events

// MessageCreatedPayload triggers the Worker (spec.md §6.2). Not delivered
// to Delivery Gateway clients.
type MessageCreatedPayload struct {
	Type        string `json:"type"` // always EventMessageCreated
	JobID       string `json:"jobId"`
	TenantID    string `json:"tenantId"`
	UserID      string `json:"userId"`
	TopicID     string `json:"topicId"`
	SessionID   string `json:"sessionId,omitempty"`
	UserMessage string `json:"userMessage"`
	Stage       string `json:"stage,omitempty"` // "coaching_message" or "single_shot_analysis"
}

// MessageResult mirrors job.Result at the event-bus boundary
// (camel-cased field names, per spec.md §6.1's HTTP-vs-bus naming split).
type MessageResult struct {
	Data            map[string]any `json:"data,omitempty"`
	RawResponse     string         `json:"rawResponse,omitempty"`
	ParseError      string         `json:"parseError,omitempty"`
	ValidationError string         `json:"validationError,omitempty"`
}

// MessageCompletedPayload is the terminal-success envelope of spec.md
// §6.2: "{jobId, sessionId, topicId, message, isFinal, turn, maxTurns,
// messageCount, result}". turn/maxTurns/messageCount are exclusive to
// this envelope — the HTTP poll_job projection omits them (§6.1).
type MessageCompletedPayload struct {
	Type         string         `json:"type"` // always EventMessageCompleted
	JobID        string         `json:"jobId"`
	SessionID    string         `json:"sessionId,omitempty"`
	TopicID      string         `json:"topicId"`
	Message      string         `json:"message"`
	IsFinal      bool           `json:"isFinal"`
	Turn         int            `json:"turn,omitempty"`
	MaxTurns     int            `json:"maxTurns,omitempty"`
	MessageCount int            `json:"messageCount,omitempty"`
	Result       *MessageResult `json:"result,omitempty"`
}

// MessageFailedPayload is the terminal-failure envelope of spec.md §6.2:
// "{jobId, sessionId, topicId, error, errorCode}".
type MessageFailedPayload struct {
	Type      string `json:"type"` // always EventMessageFailed
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId,omitempty"`
	TopicID   string `json:"topicId"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}
