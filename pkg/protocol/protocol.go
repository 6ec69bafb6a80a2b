// Package protocol defines the wire types the viva engine exchanges with its
// external collaborators: the streaming transcription channel, the live
// conversational agent bridge, and the interview backend API.
package protocol

import (
	"encoding/base64"
	"strings"
)

const (
	// PCM shape for the transcription channel. Client frames are raw binary
	// 16-bit signed little-endian mono samples at this rate.
	CaptureSampleRateHz = 16000
	CaptureChannels     = 1
	BytesPerSample      = 2
)

// TranscriptMessage is a server→client message on the transcription channel.
// FullTranscript carries the cumulative transcript each time; consumers
// replace, never append.
type TranscriptMessage struct {
	Type           string `json:"type,omitempty"` // "partial" or "final"
	Text           string `json:"text,omitempty"`
	FullTranscript string `json:"full_transcript"`
}

// SessionResponse is the backend response to both upload and answer calls.
type SessionResponse struct {
	SessionID      string   `json:"session_id"`
	MessageType    string   `json:"message_type"` // "question" or "review"
	Text           string   `json:"text"`
	AudioBase64    string   `json:"audio_base64"`
	QuestionNumber int      `json:"question_number,omitempty"`
	Score          int      `json:"score,omitempty"`
	Observations   []string `json:"observations,omitempty"`

	// AssignmentText is a truncated copy of the parsed assignment, returned
	// at upload time for bridge-flow context injection.
	AssignmentText string `json:"assignment_text,omitempty"`
}

const (
	MessageTypeQuestion = "question"
	MessageTypeReview   = "review"
)

// AnswerRequest is the backend answer submission body.
type AnswerRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// ErrorResponse is the backend error body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// AgentOverrides customizes a bridge agent session at start.
type AgentOverrides struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
	FirstMessage string `json:"first_message,omitempty"`
}

// SessionInit is the first client message on a bridge session.
type SessionInit struct {
	Type             string            `json:"type"`
	ConversationID   string            `json:"conversation_id,omitempty"`
	AgentID          string            `json:"agent_id"`
	Overrides        AgentOverrides    `json:"overrides,omitempty"`
	DynamicVariables map[string]string `json:"dynamic_variables,omitempty"`
}

// AgentMessage is the loosely-typed inbound bridge envelope. Remote agents
// are inconsistent about field names, so several aliases are decoded and
// normalized in one place (NormalizeBridgeEvent in the sdk package reads
// these accessors).
type AgentMessage struct {
	Type        string `json:"type,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	Source      string `json:"source,omitempty"`
	Role        string `json:"role,omitempty"`
	Message     string `json:"message,omitempty"`
	Text        string `json:"text,omitempty"`
	Content     string `json:"content,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	Mode        string `json:"mode,omitempty"`
	IsFinal     *bool  `json:"is_final,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Kind returns the first non-empty of type/message_type.
func (m AgentMessage) Kind() string {
	if t := strings.TrimSpace(m.Type); t != "" {
		return t
	}
	return strings.TrimSpace(m.MessageType)
}

// Speaker returns the first non-empty of source/role.
func (m AgentMessage) Speaker() string {
	if s := strings.TrimSpace(m.Source); s != "" {
		return s
	}
	return strings.TrimSpace(m.Role)
}

// Body returns the first non-empty of message/text/content/transcript.
func (m AgentMessage) Body() string {
	for _, v := range []string{m.Message, m.Text, m.Content, m.Transcript} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Final reports whether the message is final. Missing means final; only an
// explicit is_final=false marks a partial.
func (m AgentMessage) Final() bool {
	return m.IsFinal == nil || *m.IsFinal
}

// DecodeAudioBase64 decodes a base64 audio payload from a backend response.
// An empty payload decodes to nil without error.
func DecodeAudioBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
