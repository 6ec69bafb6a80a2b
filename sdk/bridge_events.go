package viva

import (
	"encoding/json"
	"strings"

	"github.com/probitylabs/viva/pkg/protocol"
)

// BridgeEvent is a normalized inbound event from the live agent session.
// The remote agent's loosely-typed messages are mapped onto this closed set
// in one place so the bridge state machine matches over a finite union
// instead of re-deriving source/type heuristics per call site.
type BridgeEvent interface {
	bridgeEventKind() string
}

// UserPartialEvent is in-progress user speech; it replaces the live
// transcript, never appends.
type UserPartialEvent struct{ Text string }

func (e UserPartialEvent) bridgeEventKind() string { return "user_partial" }

// UserFinalEvent is a committed user utterance.
type UserFinalEvent struct{ Text string }

func (e UserFinalEvent) bridgeEventKind() string { return "user_final" }

// AgentTurnEvent is one complete agent utterance.
type AgentTurnEvent struct{ Text string }

func (e AgentTurnEvent) bridgeEventKind() string { return "agent_turn" }

// ModeChangeEvent reports who holds the floor: "speaking" or "listening".
type ModeChangeEvent struct{ Mode string }

func (e ModeChangeEvent) bridgeEventKind() string { return "mode_change" }

// LifecycleEvent reports session lifecycle changes from the remote side.
type LifecycleEvent struct{ State string }

func (e LifecycleEvent) bridgeEventKind() string { return "lifecycle" }

// ErrorEvent is a remote session error.
type ErrorEvent struct{ Message string }

func (e ErrorEvent) bridgeEventKind() string { return "error" }

// UnknownEvent is any unrecognized or control message. It is dropped without
// effect so it can never corrupt the turn sequence.
type UnknownEvent struct {
	Kind string
	Raw  json.RawMessage
}

func (e UnknownEvent) bridgeEventKind() string { return "unknown" }

const (
	ModeSpeaking  = "speaking"
	ModeListening = "listening"
)

// NormalizeBridgeEvent decodes one raw agent message into the event union.
// Classification precedence: user-attributable partial, user-attributable
// final, agent-attributable, mode change, lifecycle, error, unknown.
func NormalizeBridgeEvent(raw []byte) BridgeEvent {
	var msg protocol.AgentMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return UnknownEvent{Raw: append(json.RawMessage(nil), raw...)}
	}

	kind := strings.ToLower(msg.Kind())
	speaker := strings.ToLower(msg.Speaker())
	body := msg.Body()

	switch {
	case isUserSpeech(kind, speaker):
		if body == "" {
			return UnknownEvent{Kind: kind, Raw: append(json.RawMessage(nil), raw...)}
		}
		// A bare "user_transcript" type without finality info is a committed
		// utterance; only an explicit is_final=false marks a partial.
		if msg.Final() || kind == "user_transcript" {
			return UserFinalEvent{Text: body}
		}
		return UserPartialEvent{Text: body}

	case isAgentSpeech(kind, speaker):
		if body == "" {
			return UnknownEvent{Kind: kind, Raw: append(json.RawMessage(nil), raw...)}
		}
		return AgentTurnEvent{Text: body}

	case kind == "mode_change" || (kind == "" && msg.Mode != ""):
		mode := strings.ToLower(strings.TrimSpace(msg.Mode))
		switch mode {
		case ModeSpeaking, ModeListening:
			return ModeChangeEvent{Mode: mode}
		}
		return UnknownEvent{Kind: "mode_change", Raw: append(json.RawMessage(nil), raw...)}

	case kind == "session_started" || kind == "conversation_initiation_metadata":
		return LifecycleEvent{State: "connected"}

	case kind == "session_ended":
		return LifecycleEvent{State: "disconnected"}

	case kind == "error" || msg.Error != "":
		message := strings.TrimSpace(msg.Error)
		if message == "" {
			message = body
		}
		if message == "" {
			message = "agent session error"
		}
		return ErrorEvent{Message: message}
	}

	return UnknownEvent{Kind: kind, Raw: append(json.RawMessage(nil), raw...)}
}

func isUserSpeech(kind, speaker string) bool {
	switch speaker {
	case "user", "human":
		return true
	case "ai", "agent", "assistant":
		// Explicit agent attribution beats transcript-style kinds.
		return false
	}
	switch kind {
	case "user_transcript", "transcript", "audio_transcript", "user_audio_transcript":
		return true
	}
	return false
}

func isAgentSpeech(kind, speaker string) bool {
	switch speaker {
	case "ai", "agent", "assistant":
		return true
	}
	return kind == "agent_response"
}
