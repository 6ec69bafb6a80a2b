package viva

// Role identifies the speaker of a turn.
type Role string

const (
	RoleAI      Role = "ai"
	RoleStudent Role = "student"
	RoleSystem  Role = "system"
)

// Turn is one utterance in the interview transcript, in display order. The
// turn sequence is append-only; it is never mutated or reordered.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Analysis is the final interview result. It is created once, at interview
// completion, and immutable thereafter.
type Analysis struct {
	FinalScore    int      `json:"final_score"`
	Review        string   `json:"review"`
	Observations  []string `json:"observations,omitempty"`
	ConfidenceTag string   `json:"confidence_tag"`
}

// NewAnalysis builds an Analysis from a raw score, clamping it to [0,100]
// and deriving the confidence tag.
func NewAnalysis(score int, review string, observations []string) *Analysis {
	score = ClampScore(score)
	return &Analysis{
		FinalScore:    score,
		Review:        review,
		Observations:  observations,
		ConfidenceTag: ConfidenceTag(score),
	}
}

// Settings carries per-session configuration passed explicitly into upload
// and session-start calls. Persistence, if any, belongs to the caller.
type Settings struct {
	GeminiAPIKey     string
	ElevenLabsAPIKey string
	CustomPrompt     string
	QuestionCount    int
}
