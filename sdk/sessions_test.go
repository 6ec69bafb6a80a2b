package viva

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/probitylabs/viva/pkg/core"
	"github.com/probitylabs/viva/pkg/protocol"
)

func TestSessionsUpload_ValidatesLocally(t *testing.T) {
	t.Parallel()

	// Any backend call is a validation failure.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected backend call %s", r.URL.Path)
		http.NotFound(w, r)
	}))
	defer backend.Close()
	client := NewClient(WithBaseURL(backend.URL))

	tests := []struct {
		name    string
		req     UploadRequest
		errPart string
	}{
		{
			name:    "empty file name",
			req:     UploadRequest{FileName: "", Data: []byte("x")},
			errPart: "file name",
		},
		{
			name:    "disallowed extension",
			req:     UploadRequest{FileName: "essay.exe", Data: []byte("x")},
			errPart: "unsupported file type",
		},
		{
			name:    "no extension",
			req:     UploadRequest{FileName: "essay", Data: []byte("x")},
			errPart: "unsupported file type",
		},
		{
			name:    "empty data",
			req:     UploadRequest{FileName: "essay.pdf", Data: nil},
			errPart: "file is empty",
		},
		{
			name:    "oversized data",
			req:     UploadRequest{FileName: "essay.pdf", Data: make([]byte, maxUploadBytes+1)},
			errPart: "too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Sessions.Upload(context.Background(), tt.req)
			if !core.IsInvalidRequest(err) {
				t.Fatalf("error = %v, want invalid request", err)
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Fatalf("error = %q, want substring %q", err.Error(), tt.errPart)
			}
		})
	}
}

func TestSessionsUpload_SendsMultipartFields(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "essay.docx" {
			t.Errorf("filename = %q, want essay.docx", header.Filename)
		}
		if got := r.FormValue("gemini_api_key"); got != "gk" {
			t.Errorf("gemini_api_key = %q, want gk", got)
		}
		if got := r.FormValue("elevenlabs_api_key"); got != "ek" {
			t.Errorf("elevenlabs_api_key = %q, want ek", got)
		}
		if got := r.FormValue("custom_prompt"); got != "be strict" {
			t.Errorf("custom_prompt = %q, want %q", got, "be strict")
		}
		if got := r.FormValue("num_questions"); got != "5" {
			t.Errorf("num_questions = %q, want 5", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.SessionResponse{
			SessionID:      "sess_42",
			MessageType:    protocol.MessageTypeQuestion,
			Text:           "First question?",
			QuestionNumber: 1,
		})
	}))
	defer backend.Close()

	client := NewClient(WithBaseURL(backend.URL))
	resp, err := client.Sessions.Upload(context.Background(), UploadRequest{
		FileName: "essay.docx",
		Data:     []byte("doc bytes"),
		Settings: Settings{
			GeminiAPIKey:     "gk",
			ElevenLabsAPIKey: "ek",
			CustomPrompt:     "be strict",
			QuestionCount:    5,
		},
	})
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if resp.SessionID != "sess_42" {
		t.Fatalf("session id = %q, want sess_42", resp.SessionID)
	}
}

func TestSubmitAnswer_SendsProviderKeyHeaders(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/answer" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("X-Gemini-Api-Key"); got != "client-gk" {
			t.Errorf("X-Gemini-Api-Key = %q, want client-gk", got)
		}
		if got := r.Header.Get("X-Elevenlabs-Api-Key"); got != "call-ek" {
			t.Errorf("X-Elevenlabs-Api-Key = %q, want call-ek", got)
		}
		var req protocol.AnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode answer: %v", err)
		}
		if req.SessionID != "sess_1" || req.Answer != "my answer" {
			t.Errorf("answer request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.SessionResponse{
			SessionID:   "sess_1",
			MessageType: protocol.MessageTypeReview,
			Text:        "Your integrity score is 88 out of 100.",
			Score:       88,
		})
	}))
	defer backend.Close()

	// The per-call ElevenLabs key overrides the client default; the client
	// Gemini key fills the gap.
	client := NewClient(
		WithBaseURL(backend.URL),
		WithProviderKey("gemini", "client-gk"),
		WithProviderKey("elevenlabs", "client-ek"),
	)
	resp, err := client.Sessions.SubmitAnswer(context.Background(), "sess_1", "my answer",
		Settings{ElevenLabsAPIKey: "call-ek"})
	if err != nil {
		t.Fatalf("SubmitAnswer error: %v", err)
	}
	if resp.Score != 88 {
		t.Fatalf("score = %d, want 88", resp.Score)
	}
}

func TestSubmitAnswer_RejectsEmptyInput(t *testing.T) {
	t.Parallel()

	client := NewClient(WithBaseURL("http://127.0.0.1:1"))
	if _, err := client.Sessions.SubmitAnswer(context.Background(), "", "answer", Settings{}); !core.IsInvalidRequest(err) {
		t.Fatalf("empty session id error = %v, want invalid request", err)
	}
	if _, err := client.Sessions.SubmitAnswer(context.Background(), "sess_1", "  ", Settings{}); !core.IsInvalidRequest(err) {
		t.Fatalf("blank answer error = %v, want invalid request", err)
	}
}

func TestDecodeSessionResponse_SurfacesBackendDetail(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{Detail: "could not parse document"})
	}))
	defer backend.Close()

	client := NewClient(WithBaseURL(backend.URL))
	_, err := client.Sessions.Upload(context.Background(), UploadRequest{
		FileName: "essay.pdf",
		Data:     []byte("x"),
	})
	if err == nil {
		t.Fatal("expected backend error")
	}
	if !strings.Contains(err.Error(), "could not parse document") {
		t.Fatalf("error = %q, want backend detail", err.Error())
	}
	if !strings.Contains(err.Error(), "422") {
		t.Fatalf("error = %q, want status code", err.Error())
	}
}

func TestDecodeSessionResponse_RejectsUnknownMessageType(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id":   "sess_1",
			"message_type": "surprise",
		})
	}))
	defer backend.Close()

	client := NewClient(WithBaseURL(backend.URL))
	_, err := client.Sessions.Upload(context.Background(), UploadRequest{
		FileName: "essay.pdf",
		Data:     []byte("x"),
	})
	if err == nil || !strings.Contains(err.Error(), "surprise") {
		t.Fatalf("error = %v, want unexpected message_type", err)
	}
}

func TestSessionsTranscriptAndHealth(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session/sess_1/transcript":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(TranscriptResponse{Conversation: []Turn{
				{Role: RoleAI, Text: "Question one?"},
				{Role: RoleStudent, Text: "My answer."},
			}})
		case "/api/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer backend.Close()

	client := NewClient(WithBaseURL(backend.URL))

	transcript, err := client.Sessions.Transcript(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("Transcript error: %v", err)
	}
	if len(transcript.Conversation) != 2 || transcript.Conversation[1].Role != RoleStudent {
		t.Fatalf("conversation = %+v", transcript.Conversation)
	}

	if err := client.Sessions.Health(context.Background()); err != nil {
		t.Fatalf("Health error: %v", err)
	}
}
