package viva

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/probitylabs/viva/internal/metrics"
	"github.com/probitylabs/viva/pkg/core"
	"github.com/probitylabs/viva/pkg/protocol"
)

// ConversationState is the interview-side view of who holds the floor.
// Exactly one value at any time.
type ConversationState string

const (
	StateIdle       ConversationState = "idle"
	StateConnecting ConversationState = "connecting"
	StateListening  ConversationState = "listening"
	StateSpeaking   ConversationState = "speaking"
	StateProcessing ConversationState = "processing"
	StateReview     ConversationState = "review"
)

const (
	defaultQuestionCount = 3
	defaultGracePeriod   = 2 * time.Second
	bridgeDialTimeout    = 15 * time.Second
)

// BridgeConfig configures a live agent session.
type BridgeConfig struct {
	// URL is the agent websocket endpoint.
	URL string

	// AgentID selects the remote conversational agent.
	AgentID string

	// AssignmentTitle and AssignmentText are injected into the agent's
	// system prompt so questions reference the student's actual work.
	AssignmentTitle string
	AssignmentText  string

	// QuestionCount is the number of interview questions. The session is
	// complete after QuestionCount+2 agent turns (greeting + questions +
	// review).
	QuestionCount int

	// GracePeriod delays the automatic session end after completion so the
	// final agent audio can finish rendering.
	GracePeriod time.Duration

	DynamicVariables map[string]string

	Dialer  *websocket.Dialer
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c *BridgeConfig) applyDefaults() {
	if c.QuestionCount <= 0 {
		c.QuestionCount = defaultQuestionCount
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{HandshakeTimeout: bridgeDialTimeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// completionThreshold is the agent-turn count that completes the interview:
// one greeting, one turn per question, one review.
func (c *BridgeConfig) completionThreshold() int {
	return c.QuestionCount + 2
}

// Bridge owns a single live duplex session with the remote conversational
// voice agent. It classifies inbound events into the BridgeEvent union,
// maintains the turn log and live transcript, and latches completion after
// the configured number of agent turns.
type Bridge struct {
	cfg BridgeConfig

	mu             sync.Mutex
	state          ConversationState
	turns          []Turn
	liveTranscript string
	agentTurns     int
	completed      bool
	score          int
	scoreFound     bool
	conversationID string
	conn           *websocket.Conn
	endTimer       *time.Timer
	done           chan struct{}

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

// NewBridge creates a bridge for one or more sessions with the agent.
func NewBridge(cfg BridgeConfig) *Bridge {
	cfg.applyDefaults()
	return &Bridge{cfg: cfg, state: StateIdle}
}

// StartSession opens the live session and sends the interview context. A
// start already in flight or an open session makes the call a no-op: the
// connecting state is the re-entrancy guard.
func (b *Bridge) StartSession(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateIdle {
		b.mu.Unlock()
		return nil
	}
	b.state = StateConnecting
	b.turns = []Turn{{Role: RoleSystem, Text: "Connecting to the interviewer..."}}
	b.liveTranscript = ""
	b.agentTurns = 0
	b.completed = false
	b.score = 0
	b.scoreFound = false
	b.conversationID = uuid.NewString()
	conversationID := b.conversationID
	b.mu.Unlock()
	b.setErr(nil)

	conn, resp, err := b.cfg.Dialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		b.resetToIdle()
		if resp != nil {
			return core.NewConnectivityError(fmt.Sprintf("agent session connect failed (status %d)", resp.StatusCode), err)
		}
		return core.NewConnectivityError("agent session connect failed", err)
	}

	init := protocol.SessionInit{
		Type:           "session_init",
		ConversationID: conversationID,
		AgentID:        b.cfg.AgentID,
		Overrides: protocol.AgentOverrides{
			SystemPrompt: buildInterviewPrompt(b.cfg.AssignmentTitle, b.cfg.AssignmentText, b.cfg.QuestionCount),
			FirstMessage: buildInterviewGreeting(b.cfg.AssignmentTitle, b.cfg.QuestionCount),
		},
		DynamicVariables: b.cfg.DynamicVariables,
	}
	b.writeMu.Lock()
	err = conn.WriteJSON(init)
	b.writeMu.Unlock()
	if err != nil {
		_ = conn.Close()
		b.resetToIdle()
		return core.NewConnectivityError("agent session init failed", err)
	}

	done := make(chan struct{})
	b.mu.Lock()
	b.conn = conn
	b.done = done
	b.state = StateListening
	b.turns = []Turn{{Role: RoleSystem, Text: "Connected. The interviewer will greet you shortly."}}
	b.mu.Unlock()

	go b.readLoop(conn, done)

	b.cfg.Logger.Debug("agent session started",
		"conversation_id", conversationID,
		"agent_id", b.cfg.AgentID,
		"question_count", b.cfg.QuestionCount)
	return nil
}

func (b *Bridge) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			open := b.conn == conn
			completed := b.completed
			if open {
				b.conn = nil
				b.state = StateIdle
			}
			b.mu.Unlock()
			if open && !completed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.setErr(core.NewConnectivityError("agent session dropped", err))
			}
			return
		}
		event := NormalizeBridgeEvent(data)
		b.cfg.Metrics.BridgeEvent(eventKind(event))
		b.handleEvent(event)
	}
}

func eventKind(event BridgeEvent) string {
	if event == nil {
		return "unknown"
	}
	return event.bridgeEventKind()
}

// handleEvent applies one normalized event to the session state. Unknown
// events are dropped without effect.
func (b *Bridge) handleEvent(event BridgeEvent) {
	switch e := event.(type) {
	case UserPartialEvent:
		b.mu.Lock()
		b.liveTranscript = e.Text
		b.mu.Unlock()

	case UserFinalEvent:
		b.mu.Lock()
		b.turns = append(b.turns, Turn{Role: RoleStudent, Text: e.Text})
		b.liveTranscript = ""
		b.mu.Unlock()
		b.cfg.Metrics.TurnAppended(string(RoleStudent))

	case AgentTurnEvent:
		b.handleAgentTurn(e.Text)

	case ModeChangeEvent:
		b.mu.Lock()
		if b.state != StateReview {
			if e.Mode == ModeSpeaking {
				b.state = StateSpeaking
				// Never show a user line while the agent is talking.
				b.liveTranscript = ""
			} else {
				b.state = StateListening
			}
		}
		b.mu.Unlock()

	case LifecycleEvent:
		b.mu.Lock()
		switch e.State {
		case "connected":
			if b.state == StateConnecting {
				b.state = StateListening
			}
		case "disconnected":
			b.state = StateIdle
		}
		b.mu.Unlock()

	case ErrorEvent:
		b.setErr(core.NewConnectivityError(e.Message, nil))
		b.mu.Lock()
		b.state = StateIdle
		b.mu.Unlock()

	case UnknownEvent:
		b.cfg.Logger.Debug("dropping unclassified agent event", "kind", e.Kind)
	}
}

// handleAgentTurn appends an agent turn, filters connection placeholders out
// of the log, and fires the completion latch exactly once when the turn
// count reaches the configured threshold.
func (b *Bridge) handleAgentTurn(text string) {
	var fireCompletion bool

	b.mu.Lock()
	kept := b.turns[:0]
	for _, turn := range b.turns {
		if turn.Role != RoleSystem {
			kept = append(kept, turn)
		}
	}
	b.turns = append(kept, Turn{Role: RoleAI, Text: text})
	b.agentTurns++
	if b.agentTurns >= b.cfg.completionThreshold() && !b.completed {
		b.completed = true
		b.state = StateReview
		if score, ok := ExtractScore(text); ok {
			b.score = score
			b.scoreFound = true
		}
		fireCompletion = true
	}
	b.mu.Unlock()

	b.cfg.Metrics.TurnAppended(string(RoleAI))
	b.cfg.Metrics.BridgeAgentTurn()

	if fireCompletion {
		b.mu.Lock()
		found := b.scoreFound
		b.endTimer = time.AfterFunc(b.cfg.GracePeriod, func() { b.EndSession() })
		b.mu.Unlock()
		if found {
			b.cfg.Metrics.ScoreExtraction("found")
		} else {
			b.cfg.Metrics.ScoreExtraction("miss")
		}
		b.cfg.Logger.Info("interview complete",
			"agent_turns", b.AgentTurnCount(),
			"score_found", found)
	}
}

// EndSession tears the session down. Safe to call when no session exists;
// secondary teardown errors are swallowed — releasing the device comes
// first.
func (b *Bridge) EndSession() {
	b.mu.Lock()
	conn := b.conn
	timer := b.endTimer
	b.conn = nil
	b.endTimer = nil
	b.state = StateIdle
	b.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if conn != nil {
		b.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		b.writeMu.Unlock()
		_ = conn.Close()
	}
}

func (b *Bridge) resetToIdle() {
	b.mu.Lock()
	b.state = StateIdle
	b.mu.Unlock()
}

// State returns the current conversation state.
func (b *Bridge) State() ConversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Turns returns a copy of the displayed turn log.
func (b *Bridge) Turns() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Turn(nil), b.turns...)
}

// LiveTranscript returns the in-flight partial user utterance.
func (b *Bridge) LiveTranscript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.liveTranscript
}

// AgentTurnCount returns the number of agent turns observed this session.
func (b *Bridge) AgentTurnCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agentTurns
}

// Completed reports whether the completion latch has fired.
func (b *Bridge) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// Score returns the score extracted from the review turn, if any.
func (b *Bridge) Score() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.score, b.scoreFound
}

// lastAgentText returns the most recent agent turn text.
func (b *Bridge) lastAgentText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.turns) - 1; i >= 0; i-- {
		if b.turns[i].Role == RoleAI {
			return b.turns[i].Text
		}
	}
	return ""
}

// Result builds the final analysis from the session: the extracted score,
// or a fresh extraction from the last agent turn, or the default fallback.
// Extraction misses are recovered, never surfaced as errors.
func (b *Bridge) Result() *Analysis {
	review := b.lastAgentText()
	if review == "" {
		review = "Review not available."
	}

	score, found := b.Score()
	if !found {
		score, found = ExtractScore(review)
	}
	if !found {
		score = DefaultFallbackScore
		b.cfg.Metrics.ScoreExtraction("fallback")
	}
	return NewAnalysis(score, review, nil)
}

// Done returns a channel closed when the current session's read loop exits,
// or nil when no session is open.
func (b *Bridge) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Err returns the terminal session error, if any.
func (b *Bridge) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}

func (b *Bridge) setErr(err error) {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	if err == nil {
		b.err = nil
		return
	}
	if b.err == nil {
		b.err = err
	}
}

// buildInterviewPrompt renders the agent system prompt with the student's
// assignment injected so questions reference their actual content.
func buildInterviewPrompt(title, text string, questions int) string {
	if strings.TrimSpace(title) == "" {
		title = "your assignment"
	}
	if strings.TrimSpace(text) == "" {
		text = "No assignment content provided."
	}
	return fmt.Sprintf(`You are an AI coach verifying a student understands their submitted assignment.

ASSIGNMENT TITLE: %s

ASSIGNMENT CONTENT:
%s

RULES:
1. Ask SHORT, SPECIFIC questions directly referencing their actual content.
2. Ask exactly %d questions, ONE at a time. Wait for each answer.
3. Questions must be CONCISE (1-2 sentences max) and reference SPECIFIC parts of their work.

AFTER %d ANSWERS:
Give a brief review (2 sentences) and clearly state the score.
Say exactly: "Your integrity score is [NUMBER] out of one hundred" where [NUMBER] is a value between 30 and 100.

IMPORTANT:
- Keep questions SHORT and SPECIFIC to their content
- Do NOT ask broad/generic questions
- The first message is just a greeting, then ask %d questions
- Always end with the integrity score statement`, title, text, questions, questions, questions)
}

// buildInterviewGreeting renders the agent's first message.
func buildInterviewGreeting(title string, questions int) string {
	if strings.TrimSpace(title) == "" {
		title = "your assignment"
	}
	return fmt.Sprintf(
		"Hello! I've just reviewed your assignment %q. I'll ask you %s quick questions to make sure the work reflects your own understanding. Ready?",
		title, countWord(questions))
}

func countWord(n int) string {
	words := map[int]string{1: "one", 2: "two", 3: "three", 4: "four", 5: "five", 6: "six", 7: "seven", 8: "eight", 9: "nine", 10: "ten"}
	if w, ok := words[n]; ok {
		return w
	}
	return fmt.Sprintf("%d", n)
}
