package session

// ClientMessage is one inbound frame on the session WebSocket
type ClientMessage struct {
	Event   string         `json:"event"` // "start", "audio", "control", "stop"
	Audio   *AudioPayload  `json:"audio,omitempty"`
	Start   *StartPayload  `json:"start,omitempty"`
	Control *ControlAction `json:"control,omitempty"`
}

// AudioPayload carries one captured audio chunk
type AudioPayload struct {
	Payload string `json:"payload"` // Base64 little-endian 16-bit PCM
}

// StartPayload opens the session
type StartPayload struct {
	SessionID  string `json:"sessionId,omitempty"`
	UserID     string `json:"userId"`
	SampleRate int    `json:"sampleRate,omitempty"` // Capture rate; resampled when it differs from the engine rate
}

// ControlAction is an explicit UI command
type ControlAction struct {
	Action string `json:"action"` // "stop", "resume", "reset_profile"
}

// ServerMessage is one outbound frame
type ServerMessage struct {
	Event     string  `json:"event"`             // "audio", "state", "transcript", "reply", "error"
	Payload   string  `json:"payload,omitempty"` // Base64 PCM for "audio"
	State     string  `json:"state,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
	Text      string  `json:"text,omitempty"`
	IsFinal   bool    `json:"isFinal,omitempty"`
	MessageID string  `json:"messageId,omitempty"`
	Severity  string  `json:"severity,omitempty"` // For "error": "info", "warn", "fatal"
	ErrorCode string  `json:"errorCode,omitempty"`
}
