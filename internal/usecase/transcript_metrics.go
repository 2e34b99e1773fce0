package usecase

import (
	"math"
	"strings"

	"call-insights/internal/domain"
)

// TranscriptMetrics are the deterministic talk-time and question statistics of
// a transcript. Ratios are whole percentages.
type TranscriptMetrics struct {
	AgentTimeRatio int `json:"agentTimeRatio"`
	LeadTimeRatio  int `json:"leadTimeRatio"`
	AgentMessages  int `json:"agentMessages"`
	LeadMessages   int `json:"leadMessages"`
	AgentWordCount int `json:"agentWordCount"`
	LeadWordCount  int `json:"leadWordCount"`
	AgentQuestions int `json:"agentQuestions"`
	LeadQuestions  int `json:"leadQuestions"`
	TotalQuestions int `json:"totalQuestions"`
}

// CalculateTranscriptMetrics partitions messages by role and derives the
// talk-time split from word counts. System turns are ignored. With no words
// spoken the split defaults to 50/50.
func CalculateTranscriptMetrics(t domain.ConversationTranscript) TranscriptMetrics {
	var m TranscriptMetrics
	for _, msg := range t.Messages {
		words := countWords(msg.Content)
		asked := strings.Contains(msg.Content, "?")
		switch msg.Role {
		case domain.RoleAgent:
			m.AgentMessages++
			m.AgentWordCount += words
			if asked {
				m.AgentQuestions++
			}
		case domain.RoleLead:
			m.LeadMessages++
			m.LeadWordCount += words
			if asked {
				m.LeadQuestions++
			}
		}
	}
	m.TotalQuestions = m.AgentQuestions + m.LeadQuestions

	total := m.AgentWordCount + m.LeadWordCount
	if total == 0 {
		m.AgentTimeRatio, m.LeadTimeRatio = 50, 50
		return m
	}
	m.AgentTimeRatio = int(math.Round(100 * float64(m.AgentWordCount) / float64(total)))
	m.LeadTimeRatio = 100 - m.AgentTimeRatio
	return m
}

// TalkTimeRatio converts the percentage split into the 0..1 domain used by
// ConversationAnalysis. Client is derived from Agent so the pair sums to 1.
func (m TranscriptMetrics) TalkTimeRatio() domain.TalkTimeRatio {
	agent := float64(m.AgentTimeRatio) / 100
	return domain.TalkTimeRatio{Agent: agent, Client: 1 - agent}
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
