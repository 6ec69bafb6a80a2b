package viva

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/probitylabs/viva/internal/metrics"
	"github.com/probitylabs/viva/pkg/core"
	"github.com/probitylabs/viva/pkg/protocol"
)

// Stage is the interview lifecycle stage.
type Stage string

const (
	StageUpload    Stage = "upload"
	StageReady     Stage = "ready"
	StageInterview Stage = "interview"
	StageResults   Stage = "results"
)

// submissionRecoveryNotice is shown as an agent turn when an answer
// submission fails; the interview continues from the same question.
const submissionRecoveryNotice = "Sorry, I had trouble processing that answer. Please try answering again."

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Client   *Client
	Capture  *CaptureStream
	Player   *Player
	Bridge   *Bridge
	Settings Settings
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Orchestrator drives a full interview through the capture flow: upload the
// assignment, play each question, capture the spoken answer, submit it, and
// collect the final analysis. It also gates the bridge flow's finish. One
// answer round trip at a time: the busy gate is held from capture stop
// through submission and the next question's playback start.
type Orchestrator struct {
	client   *Client
	capture  *CaptureStream
	player   *Player
	bridge   *Bridge
	settings Settings
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu                sync.Mutex
	stage             Stage
	busy              bool
	sessionID         string
	assignmentTitle   string
	assignmentText    string
	questionNumber    int
	turns             []Turn
	analysis          *Analysis
	lastQuestionText  string
	lastQuestionAudio []byte
}

// NewOrchestrator creates an orchestrator in the upload stage.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		client:   cfg.Client,
		capture:  cfg.Capture,
		player:   cfg.Player,
		bridge:   cfg.Bridge,
		settings: cfg.Settings,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		stage:    StageUpload,
	}
}

// Upload submits the assignment file, creates the session, and stores the
// first question. Moves upload → ready.
func (o *Orchestrator) Upload(ctx context.Context, fileName string, data []byte) error {
	o.mu.Lock()
	if o.stage != StageUpload {
		o.mu.Unlock()
		return core.NewInvalidRequestError("a session is already in progress; restart first")
	}
	o.mu.Unlock()

	resp, err := o.client.Sessions.Upload(ctx, UploadRequest{
		FileName: fileName,
		Data:     data,
		Settings: o.settings,
	})
	if err != nil {
		return err
	}

	audio, err := protocol.DecodeAudioBase64(resp.AudioBase64)
	if err != nil {
		o.logger.Warn("question audio decode failed; continuing text-only", "error", err)
		audio = nil
	}

	o.mu.Lock()
	o.stage = StageReady
	o.sessionID = resp.SessionID
	o.assignmentTitle = titleFromFileName(fileName)
	o.assignmentText = resp.AssignmentText
	o.questionNumber = resp.QuestionNumber
	o.turns = []Turn{{Role: RoleAI, Text: resp.Text}}
	o.lastQuestionText = resp.Text
	o.lastQuestionAudio = audio
	o.mu.Unlock()

	o.metrics.TurnAppended(string(RoleAI))
	o.metrics.StageTransition(string(StageReady))
	o.logger.Info("session created",
		"session_id", resp.SessionID,
		"question_number", resp.QuestionNumber)
	return nil
}

// Start begins the interview: plays the first question, then opens the
// capture stream for the student's answer. Moves ready → interview.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.stage != StageReady {
		o.mu.Unlock()
		return core.NewInvalidRequestError("interview is not ready to start")
	}
	o.stage = StageInterview
	audio := o.lastQuestionAudio
	o.mu.Unlock()

	o.metrics.StageTransition(string(StageInterview))
	if err := o.player.Play(ctx, audio); err != nil {
		o.logger.Warn("question playback failed; continuing", "error", err)
	}
	return o.capture.Start(ctx)
}

// FinishAnswer commits the captured transcript as the student's answer,
// submits it, and either advances to the next question or finishes with the
// review. A second call while a round trip is in flight is rejected; the
// busy gate is released only after the next capture attempt has started.
func (o *Orchestrator) FinishAnswer(ctx context.Context) error {
	o.mu.Lock()
	if o.stage != StageInterview {
		o.mu.Unlock()
		return core.NewInvalidRequestError("no interview in progress")
	}
	if o.busy {
		o.mu.Unlock()
		return core.NewInvalidRequestError("an answer is already being processed")
	}
	o.busy = true
	sessionID := o.sessionID
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	o.player.Stop()
	if err := o.capture.Stop(); err != nil {
		o.logger.Warn("capture stop reported errors", "error", err)
	}

	answer := strings.TrimSpace(o.capture.Transcript())
	if answer == "" {
		// Nothing was transcribed; reopen the mic for another try.
		o.capture.Reset()
		if err := o.capture.Start(ctx); err != nil {
			return err
		}
		return core.NewInvalidRequestError("no answer was captured; please try again")
	}

	o.mu.Lock()
	o.turns = append(o.turns, Turn{Role: RoleStudent, Text: answer})
	o.mu.Unlock()
	o.metrics.TurnAppended(string(RoleStudent))

	resp, err := o.client.Sessions.SubmitAnswer(ctx, sessionID, answer, o.settings)
	if err != nil {
		// Recoverable: surface a notice in the transcript and resume
		// listening so the student can re-answer the same question.
		o.metrics.SubmissionError()
		o.mu.Lock()
		o.turns = append(o.turns, Turn{Role: RoleAI, Text: submissionRecoveryNotice})
		o.mu.Unlock()
		o.metrics.TurnAppended(string(RoleAI))
		o.capture.Reset()
		if startErr := o.capture.Start(ctx); startErr != nil {
			return errors.Join(err, startErr)
		}
		return err
	}

	if resp.MessageType == protocol.MessageTypeReview {
		return o.finishWithReview(ctx, resp)
	}
	return o.nextQuestion(ctx, resp)
}

// nextQuestion records the follow-up question, plays it, and reopens the
// capture stream.
func (o *Orchestrator) nextQuestion(ctx context.Context, resp *protocol.SessionResponse) error {
	audio, err := protocol.DecodeAudioBase64(resp.AudioBase64)
	if err != nil {
		o.logger.Warn("question audio decode failed; continuing text-only", "error", err)
		audio = nil
	}

	o.mu.Lock()
	o.turns = append(o.turns, Turn{Role: RoleAI, Text: resp.Text})
	o.questionNumber = resp.QuestionNumber
	o.lastQuestionText = resp.Text
	o.lastQuestionAudio = audio
	o.mu.Unlock()
	o.metrics.TurnAppended(string(RoleAI))

	if err := o.player.Play(ctx, audio); err != nil {
		o.logger.Warn("question playback failed; continuing", "error", err)
	}
	o.capture.Reset()
	return o.capture.Start(ctx)
}

// finishWithReview records the review turn, builds the analysis, and moves
// interview → results. The mic is released before anything else.
func (o *Orchestrator) finishWithReview(ctx context.Context, resp *protocol.SessionResponse) error {
	if err := o.capture.Stop(); err != nil {
		o.logger.Warn("capture stop reported errors", "error", err)
	}

	score := resp.Score
	if score <= 0 {
		if extracted, ok := ExtractScore(resp.Text); ok {
			score = extracted
			o.metrics.ScoreExtraction("found")
		} else {
			score = DefaultFallbackScore
			o.metrics.ScoreExtraction("fallback")
		}
	}

	audio, err := protocol.DecodeAudioBase64(resp.AudioBase64)
	if err != nil {
		audio = nil
	}

	o.mu.Lock()
	o.turns = append(o.turns, Turn{Role: RoleAI, Text: resp.Text})
	o.analysis = NewAnalysis(score, resp.Text, resp.Observations)
	o.stage = StageResults
	o.mu.Unlock()

	o.metrics.TurnAppended(string(RoleAI))
	o.metrics.StageTransition(string(StageResults))
	o.logger.Info("interview finished", "score", score)

	if err := o.player.Play(ctx, audio); err != nil {
		o.logger.Debug("review playback failed", "error", err)
	}
	return nil
}

// RepeatQuestion stops capture, replays the current question's audio, and
// reopens capture afterwards. The mic is never open while the speaker plays,
// so the replayed question cannot bleed into the live transcript. Rejected
// while an answer round trip is in flight.
func (o *Orchestrator) RepeatQuestion(ctx context.Context) error {
	o.mu.Lock()
	if o.stage != StageInterview {
		o.mu.Unlock()
		return core.NewInvalidRequestError("no interview in progress")
	}
	if o.busy {
		o.mu.Unlock()
		return core.NewInvalidRequestError("an answer is already being processed")
	}
	audio := o.lastQuestionAudio
	o.mu.Unlock()

	if len(audio) == 0 {
		return core.NewInvalidRequestError("no question audio to repeat")
	}

	if err := o.capture.Stop(); err != nil {
		o.logger.Warn("capture stop reported errors", "error", err)
	}
	if err := o.player.Play(ctx, audio); err != nil {
		o.logger.Warn("question playback failed; continuing", "error", err)
	}
	o.capture.Reset()
	return o.capture.Start(ctx)
}

// FinishBridge ends the live agent session and produces the analysis from
// its turn log. Rejected before the agent has produced a reviewable amount
// of conversation, unless the completion latch already fired.
func (o *Orchestrator) FinishBridge() (*Analysis, error) {
	if o.bridge == nil {
		return nil, core.NewInvalidRequestError("no live session is configured")
	}
	if !o.bridge.Completed() && len(o.bridge.Turns()) < 4 {
		return nil, core.NewInvalidRequestError("the interview has not progressed far enough to finish")
	}
	o.bridge.EndSession()
	analysis := o.bridge.Result()

	o.mu.Lock()
	o.turns = o.bridge.Turns()
	o.analysis = analysis
	o.stage = StageResults
	o.mu.Unlock()

	o.metrics.StageTransition(string(StageResults))
	return analysis, nil
}

// Restart abandons the current session and returns to the upload stage.
// Everything is torn down; teardown errors are swallowed.
func (o *Orchestrator) Restart() {
	if o.player != nil {
		o.player.Stop()
	}
	if o.capture != nil {
		_ = o.capture.Stop()
		o.capture.Reset()
	}
	if o.bridge != nil {
		o.bridge.EndSession()
	}

	o.mu.Lock()
	o.stage = StageUpload
	o.busy = false
	o.sessionID = ""
	o.assignmentTitle = ""
	o.assignmentText = ""
	o.questionNumber = 0
	o.turns = nil
	o.analysis = nil
	o.lastQuestionText = ""
	o.lastQuestionAudio = nil
	o.mu.Unlock()

	o.metrics.StageTransition(string(StageUpload))
}

// Stage returns the current lifecycle stage.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// Busy reports whether an answer round trip is in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// SessionID returns the backend session ID, empty before upload.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// AssignmentTitle returns the display title derived from the uploaded file.
func (o *Orchestrator) AssignmentTitle() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.assignmentTitle
}

// AssignmentText returns the parsed assignment text from upload.
func (o *Orchestrator) AssignmentText() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.assignmentText
}

// QuestionNumber returns the current question's ordinal.
func (o *Orchestrator) QuestionNumber() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.questionNumber
}

// QuestionText returns the current question's text.
func (o *Orchestrator) QuestionText() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastQuestionText
}

// Turns returns a copy of the interview transcript so far.
func (o *Orchestrator) Turns() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Turn(nil), o.turns...)
}

// Analysis returns the final result, nil until the results stage.
func (o *Orchestrator) Analysis() *Analysis {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.analysis
}

// ConversationState derives the who-holds-the-floor view from the moving
// parts: processing while a round trip is in flight, speaking during
// playback, listening while capturing, review once results exist.
func (o *Orchestrator) ConversationState() ConversationState {
	o.mu.Lock()
	stage := o.stage
	busy := o.busy
	o.mu.Unlock()

	switch {
	case busy:
		return StateProcessing
	case stage == StageResults:
		return StateReview
	case o.player != nil && o.player.Speaking():
		return StateSpeaking
	case o.capture != nil && o.capture.Listening():
		return StateListening
	default:
		return StateIdle
	}
}

// titleFromFileName strips the extension for display.
func titleFromFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
