package viva

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/probitylabs/viva/pkg/core"
	"github.com/probitylabs/viva/pkg/protocol"
)

const maxUploadBytes = 8 << 20 // backend rejects larger files; fail fast

var allowedUploadExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".pptx": true,
	".txt":  true,
}

// SessionsService talks to the interview backend: upload, answer submission,
// transcript retrieval, and health.
type SessionsService struct {
	client *Client
}

// UploadRequest carries the assignment file and per-session settings.
type UploadRequest struct {
	FileName string
	Data     []byte
	Settings Settings
}

// Upload starts an interview session. The response carries the session ID,
// the first question text and audio, and the parsed assignment text for
// bridge-flow context injection.
func (s *SessionsService) Upload(ctx context.Context, req UploadRequest) (*protocol.SessionResponse, error) {
	ctx, end := s.client.startSpan(ctx, "viva.sessions.upload")
	var err error
	defer func() { end(err) }()

	if strings.TrimSpace(req.FileName) == "" {
		err = core.NewInvalidRequestError("file name must not be empty")
		return nil, err
	}
	ext := strings.ToLower(path.Ext(req.FileName))
	if !allowedUploadExtensions[ext] {
		err = core.NewInvalidRequestError(fmt.Sprintf("unsupported file type %q (allowed: pdf, docx, pptx, txt)", ext))
		return nil, err
	}
	if len(req.Data) == 0 {
		err = core.NewInvalidRequestError("file is empty")
		return nil, err
	}
	if len(req.Data) > maxUploadBytes {
		err = core.NewInvalidRequestError("file too large (max 8MB)")
		return nil, err
	}

	settings := s.client.mergedSettings(req.Settings)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, ferr := mw.CreateFormFile("file", req.FileName)
	if ferr != nil {
		err = fmt.Errorf("create form file: %w", ferr)
		return nil, err
	}
	if _, werr := fw.Write(req.Data); werr != nil {
		err = fmt.Errorf("write form file: %w", werr)
		return nil, err
	}
	if settings.GeminiAPIKey != "" {
		_ = mw.WriteField("gemini_api_key", settings.GeminiAPIKey)
	}
	if settings.ElevenLabsAPIKey != "" {
		_ = mw.WriteField("elevenlabs_api_key", settings.ElevenLabsAPIKey)
	}
	if settings.CustomPrompt != "" {
		_ = mw.WriteField("custom_prompt", settings.CustomPrompt)
	}
	if settings.QuestionCount > 0 {
		_ = mw.WriteField("num_questions", strconv.Itoa(settings.QuestionCount))
	}
	if cerr := mw.Close(); cerr != nil {
		err = fmt.Errorf("close multipart writer: %w", cerr)
		return nil, err
	}

	httpReq, herr := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+"/api/upload", &body)
	if herr != nil {
		err = fmt.Errorf("create upload request: %w", herr)
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, derr := s.client.httpClient.Do(httpReq)
	if derr != nil {
		err = core.NewConnectivityError("upload request failed", derr)
		return nil, err
	}
	defer resp.Body.Close()

	out, perr := decodeSessionResponse(resp)
	if perr != nil {
		err = perr
		return nil, err
	}
	s.client.logger.Debug("upload complete",
		"session_id", out.SessionID,
		"question_number", out.QuestionNumber)
	return out, nil
}

// SubmitAnswer sends a student answer and returns the next question or the
// final review. Provider keys from settings override the client defaults via
// request headers.
func (s *SessionsService) SubmitAnswer(ctx context.Context, sessionID, answer string, settings Settings) (*protocol.SessionResponse, error) {
	ctx, end := s.client.startSpan(ctx, "viva.sessions.submit_answer")
	var err error
	defer func() { end(err) }()

	if strings.TrimSpace(sessionID) == "" {
		err = core.NewInvalidRequestError("session id must not be empty")
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		err = core.NewInvalidRequestError("answer must not be empty")
		return nil, err
	}

	payload, merr := json.Marshal(protocol.AnswerRequest{SessionID: sessionID, Answer: answer})
	if merr != nil {
		err = fmt.Errorf("marshal answer: %w", merr)
		return nil, err
	}

	httpReq, herr := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+"/api/answer", bytes.NewReader(payload))
	if herr != nil {
		err = fmt.Errorf("create answer request: %w", herr)
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	merged := s.client.mergedSettings(settings)
	if merged.GeminiAPIKey != "" {
		httpReq.Header.Set("X-Gemini-Api-Key", merged.GeminiAPIKey)
	}
	if merged.ElevenLabsAPIKey != "" {
		httpReq.Header.Set("X-Elevenlabs-Api-Key", merged.ElevenLabsAPIKey)
	}

	resp, derr := s.client.httpClient.Do(httpReq)
	if derr != nil {
		err = core.NewSubmissionError("answer submission failed", derr)
		return nil, err
	}
	defer resp.Body.Close()

	out, perr := decodeSessionResponse(resp)
	if perr != nil {
		err = perr
		return nil, err
	}
	return out, nil
}

// TranscriptResponse is the backend transcript payload.
type TranscriptResponse struct {
	Conversation []Turn `json:"conversation"`
}

// Transcript fetches the backend's copy of the conversation so far.
func (s *SessionsService) Transcript(ctx context.Context, sessionID string) (*TranscriptResponse, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, core.NewInvalidRequestError("session id must not be empty")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.baseURL+"/api/session/"+sessionID+"/transcript", nil)
	if err != nil {
		return nil, fmt.Errorf("create transcript request: %w", err)
	}
	resp, err := s.client.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewConnectivityError("transcript request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromResponse(resp)
	}
	var out TranscriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("decode transcript response: %v", err))
	}
	return &out, nil
}

// Health checks backend liveness.
func (s *SessionsService) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := s.client.httpClient.Do(httpReq)
	if err != nil {
		return core.NewConnectivityError("health request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.NewAPIError(fmt.Sprintf("health check returned status %d", resp.StatusCode))
	}
	return nil
}

// mergedSettings overlays per-call settings on the client's provider keys.
func (c *Client) mergedSettings(s Settings) Settings {
	if s.GeminiAPIKey == "" {
		s.GeminiAPIKey = c.providerKey("gemini")
	}
	if s.ElevenLabsAPIKey == "" {
		s.ElevenLabsAPIKey = c.providerKey("elevenlabs")
	}
	return s
}

func decodeSessionResponse(resp *http.Response) (*protocol.SessionResponse, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromResponse(resp)
	}
	var out protocol.SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("decode session response: %v", err))
	}
	switch out.MessageType {
	case protocol.MessageTypeQuestion, protocol.MessageTypeReview:
	default:
		return nil, core.NewAPIError(fmt.Sprintf("unexpected message_type %q", out.MessageType))
	}
	return &out, nil
}

func apiErrorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var detail protocol.ErrorResponse
	if jerr := json.Unmarshal(body, &detail); jerr == nil && strings.TrimSpace(detail.Detail) != "" {
		return &core.Error{Type: core.ErrAPI, Message: detail.Detail, Code: strconv.Itoa(resp.StatusCode)}
	}
	return &core.Error{Type: core.ErrAPI, Message: "request failed", Code: strconv.Itoa(resp.StatusCode)}
}
