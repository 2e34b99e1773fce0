package domain

// Role identifies who spoke a transcript turn.
type Role string

const (
	RoleAgent  Role = "agent"
	RoleLead   Role = "lead"
	RoleSystem Role = "system"
)

// TranscriptMessage is a single timestamped speaker turn.
type TranscriptMessage struct {
	Role       Role     `json:"role"`
	Content    string   `json:"content"`
	Timestamp  float64  `json:"timestamp"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ConversationTranscript is the canonical, read-only input of an analysis run.
type ConversationTranscript struct {
	Messages         []TranscriptMessage `json:"messages"`
	Duration         float64             `json:"duration"`
	TotalWords       int                 `json:"totalWords"`
	ParticipantCount int                 `json:"participantCount"`
}
