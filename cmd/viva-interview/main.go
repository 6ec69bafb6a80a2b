// Command viva-interview runs a spoken authorship-verification interview
// from the terminal: upload an assignment, answer the agent's questions out
// loud, and receive an integrity score.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/probitylabs/viva/internal/config"
	"github.com/probitylabs/viva/internal/hardware"
	"github.com/probitylabs/viva/internal/metrics"
	"github.com/probitylabs/viva/pkg/protocol"
	viva "github.com/probitylabs/viva/sdk"
)

const (
	defaultTimeout       = 60 * time.Second
	playbackSampleRateHz = 24000
)

type interviewConfig struct {
	ConfigPath    string
	BaseURL       string
	TranscribeURL string
	BridgeURL     string
	AgentID       string
	FilePath      string
	Questions     int
	Live          bool
	MetricsAddr   string
	Timeout       time.Duration
	LogLevel      string

	GeminiAPIKey     string
	ElevenLabsAPIKey string
}

func parseInterviewConfig(args []string, getenv func(string) string) (interviewConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	defaults := config.Default()

	cfg := interviewConfig{}
	fs := flag.NewFlagSet("viva-interview", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ConfigPath, "config", "", "optional YAML config file")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "interview backend base URL")
	fs.StringVar(&cfg.TranscribeURL, "transcribe-url", "", "streaming transcription websocket URL")
	fs.StringVar(&cfg.BridgeURL, "bridge-url", "", "live agent websocket URL")
	fs.StringVar(&cfg.AgentID, "agent-id", strings.TrimSpace(getenv("VIVA_AGENT_ID")), "live agent id (or VIVA_AGENT_ID)")
	fs.StringVar(&cfg.FilePath, "file", "", "assignment file to upload (pdf, docx, pptx, txt)")
	fs.IntVar(&cfg.Questions, "questions", 0, "number of interview questions")
	fs.BoolVar(&cfg.Live, "live", false, "use the live agent bridge instead of the capture flow")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "optional Prometheus listen address (e.g. :9090)")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "backend request timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return interviewConfig{}, err
	}

	fileCfg := defaults
	if cfg.ConfigPath != "" {
		loaded, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return interviewConfig{}, err
		}
		fileCfg = loaded
	}

	// Flags override the config file, which overrides defaults.
	if cfg.BaseURL == "" {
		cfg.BaseURL = fileCfg.Backend.BaseURL
	}
	if cfg.TranscribeURL == "" {
		cfg.TranscribeURL = fileCfg.Transcription.URL
	}
	if cfg.BridgeURL == "" {
		cfg.BridgeURL = fileCfg.Bridge.URL
	}
	if cfg.AgentID == "" {
		cfg.AgentID = fileCfg.Bridge.AgentID
	}
	if cfg.Questions == 0 {
		cfg.Questions = fileCfg.Interview.QuestionCount
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = fileCfg.Backend.GetTimeoutDuration()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = fileCfg.Logging.Level
	}
	if cfg.MetricsAddr == "" && fileCfg.Metrics.Enabled {
		cfg.MetricsAddr = fileCfg.Metrics.Address
	}

	cfg.GeminiAPIKey = strings.TrimSpace(getenv("GEMINI_API_KEY"))
	cfg.ElevenLabsAPIKey = strings.TrimSpace(getenv("ELEVENLABS_API_KEY"))

	if err := validateInterviewConfig(cfg); err != nil {
		return interviewConfig{}, err
	}
	return cfg, nil
}

func validateInterviewConfig(cfg interviewConfig) error {
	if strings.TrimSpace(cfg.FilePath) == "" {
		return errors.New("-file is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errors.New("base-url must not be empty")
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil || strings.TrimSpace(baseURL.Scheme) == "" || strings.TrimSpace(baseURL.Host) == "" {
		return errors.New("base-url must be a valid absolute URL")
	}
	if cfg.Live {
		if strings.TrimSpace(cfg.BridgeURL) == "" {
			return errors.New("bridge-url must not be empty in live mode")
		}
		if strings.TrimSpace(cfg.AgentID) == "" {
			return errors.New("agent-id is required in live mode (set VIVA_AGENT_ID)")
		}
	} else if strings.TrimSpace(cfg.TranscribeURL) == "" {
		return errors.New("transcribe-url must not be empty")
	}
	if cfg.Questions < 1 || cfg.Questions > 10 {
		return fmt.Errorf("questions must be between 1 and 10, got %d", cfg.Questions)
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	return nil
}

func buildLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printTurns(out io.Writer, turns []viva.Turn) {
	for _, turn := range turns {
		fmt.Fprintf(out, "[%s] %s\n", turn.Role, turn.Text)
	}
}

func printAnalysis(out io.Writer, analysis *viva.Analysis) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Integrity score: %d/100 (%s)\n", analysis.FinalScore, analysis.ConfidenceTag)
	fmt.Fprintf(out, "Review: %s\n", analysis.Review)
	for _, obs := range analysis.Observations {
		fmt.Fprintf(out, "  - %s\n", obs)
	}
}

func runCaptureFlow(ctx context.Context, cfg interviewConfig, logger *slog.Logger, m *metrics.Metrics, in io.Reader, out io.Writer, errOut io.Writer) error {
	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		return fmt.Errorf("read assignment file: %w", err)
	}

	client := viva.NewClient(
		viva.WithBaseURL(cfg.BaseURL),
		viva.WithTimeout(cfg.Timeout),
		viva.WithLogger(logger),
		viva.WithProviderKey("gemini", cfg.GeminiAPIKey),
		viva.WithProviderKey("elevenlabs", cfg.ElevenLabsAPIKey),
	)

	speaker, err := hardware.NewSpeaker(playbackSampleRateHz, 1)
	if err != nil {
		return err
	}
	mic := hardware.NewMic(protocol.CaptureSampleRateHz, protocol.CaptureChannels, logger)

	capture := viva.NewCaptureStream(viva.CaptureConfig{
		URL:     cfg.TranscribeURL,
		Source:  mic,
		Logger:  logger,
		Metrics: m,
	})
	player := viva.NewPlayer(speaker, viva.WithPlayerLogger(logger), viva.WithPlayerMetrics(m))

	orch := viva.NewOrchestrator(viva.OrchestratorConfig{
		Client:  client,
		Capture: capture,
		Player:  player,
		Settings: viva.Settings{
			GeminiAPIKey:     cfg.GeminiAPIKey,
			ElevenLabsAPIKey: cfg.ElevenLabsAPIKey,
			QuestionCount:    cfg.Questions,
		},
		Logger:  logger,
		Metrics: m,
	})
	defer orch.Restart()

	fmt.Fprintf(out, "Uploading %s...\n", filepath.Base(cfg.FilePath))
	if err := orch.Upload(ctx, filepath.Base(cfg.FilePath), data); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n[ai] %s\n", orch.QuestionText())

	if err := orch.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Listening. Speak your answer, then type /done. Commands: /done /repeat /transcript /restart /quit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "/quit", "/exit":
			fmt.Fprintln(out, "bye")
			return nil

		case "/done":
			if err := orch.FinishAnswer(ctx); err != nil {
				fmt.Fprintf(errOut, "answer error: %v\n", err)
				continue
			}
			if orch.Stage() == viva.StageResults {
				printAnalysis(out, orch.Analysis())
				return nil
			}
			fmt.Fprintf(out, "\n[ai] %s\n", orch.QuestionText())

		case "/repeat":
			if err := orch.RepeatQuestion(ctx); err != nil {
				fmt.Fprintf(errOut, "repeat error: %v\n", err)
			}

		case "/transcript":
			printTurns(out, orch.Turns())
			if live := capture.Transcript(); live != "" {
				fmt.Fprintf(out, "(so far) %s\n", live)
			}

		case "/restart":
			orch.Restart()
			if err := orch.Upload(ctx, filepath.Base(cfg.FilePath), data); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n[ai] %s\n", orch.QuestionText())
			if err := orch.Start(ctx); err != nil {
				return err
			}

		case "":
			continue

		default:
			fmt.Fprintln(out, "commands: /done /repeat /transcript /restart /quit")
		}
	}
}

func runLiveFlow(ctx context.Context, cfg interviewConfig, logger *slog.Logger, m *metrics.Metrics, in io.Reader, out io.Writer, errOut io.Writer) error {
	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		return fmt.Errorf("read assignment file: %w", err)
	}

	client := viva.NewClient(
		viva.WithBaseURL(cfg.BaseURL),
		viva.WithTimeout(cfg.Timeout),
		viva.WithLogger(logger),
		viva.WithProviderKey("gemini", cfg.GeminiAPIKey),
		viva.WithProviderKey("elevenlabs", cfg.ElevenLabsAPIKey),
	)

	fmt.Fprintf(out, "Uploading %s...\n", filepath.Base(cfg.FilePath))
	resp, err := client.Sessions.Upload(ctx, viva.UploadRequest{
		FileName: filepath.Base(cfg.FilePath),
		Data:     data,
		Settings: viva.Settings{QuestionCount: cfg.Questions},
	})
	if err != nil {
		return err
	}

	bridge := viva.NewBridge(viva.BridgeConfig{
		URL:             cfg.BridgeURL,
		AgentID:         cfg.AgentID,
		AssignmentTitle: strings.TrimSuffix(filepath.Base(cfg.FilePath), filepath.Ext(cfg.FilePath)),
		AssignmentText:  resp.AssignmentText,
		QuestionCount:   cfg.Questions,
		Logger:          logger,
		Metrics:         m,
	})
	orch := viva.NewOrchestrator(viva.OrchestratorConfig{
		Client:  client,
		Bridge:  bridge,
		Logger:  logger,
		Metrics: m,
	})
	defer orch.Restart()

	if err := bridge.StartSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Live session started. Commands: /transcript /finish /quit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			bridge.EndSession()
			return nil
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "/quit", "/exit":
			bridge.EndSession()
			fmt.Fprintln(out, "bye")
			return nil

		case "/transcript":
			printTurns(out, bridge.Turns())
			if live := bridge.LiveTranscript(); live != "" {
				fmt.Fprintf(out, "(so far) %s\n", live)
			}

		case "/finish":
			analysis, err := orch.FinishBridge()
			if err != nil {
				fmt.Fprintf(errOut, "finish error: %v\n", err)
				continue
			}
			printTurns(out, orch.Turns())
			printAnalysis(out, analysis)
			return nil

		case "":
			if bridge.Completed() {
				analysis, err := orch.FinishBridge()
				if err == nil {
					printAnalysis(out, analysis)
					return nil
				}
			}

		default:
			fmt.Fprintln(out, "commands: /transcript /finish /quit")
		}
	}
}

func run(ctx context.Context, cfg interviewConfig, in io.Reader, out io.Writer, errOut io.Writer) error {
	logger := buildLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer server.Close()
	}

	if cfg.Live {
		return runLiveFlow(ctx, cfg, logger, m, in, out, errOut)
	}
	return runCaptureFlow(ctx, cfg, logger, m, in, out, errOut)
}

func main() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	cfg, err := parseInterviewConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "viva-interview: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "viva-interview: %v\n", err)
		os.Exit(1)
	}
}
