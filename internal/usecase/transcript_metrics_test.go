package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"call-insights/internal/domain"
)

func transcriptOf(msgs ...domain.TranscriptMessage) domain.ConversationTranscript {
	return domain.ConversationTranscript{Messages: msgs, ParticipantCount: 2}
}

func agent(content string) domain.TranscriptMessage {
	return domain.TranscriptMessage{Role: domain.RoleAgent, Content: content}
}

func lead(content string) domain.TranscriptMessage {
	return domain.TranscriptMessage{Role: domain.RoleLead, Content: content}
}

func TestCalculateTranscriptMetrics_Partition(t *testing.T) {
	m := CalculateTranscriptMetrics(transcriptOf(
		agent("Hola, ¿tiene un minuto para hablar?"),
		lead("Sí, claro"),
		agent("¿Cuál es su mayor problema hoy?"),
		lead("El costo de la herramienta actual es muy alto"),
		domain.TranscriptMessage{Role: domain.RoleSystem, Content: "call recorded"},
	))

	require.Equal(t, 2, m.AgentMessages)
	require.Equal(t, 2, m.LeadMessages)
	require.Equal(t, 12, m.AgentWordCount)
	require.Equal(t, 11, m.LeadWordCount)
	require.Equal(t, 2, m.AgentQuestions)
	require.Equal(t, 0, m.LeadQuestions)
	require.Equal(t, 2, m.TotalQuestions)
	require.Equal(t, 52, m.AgentTimeRatio)
	require.Equal(t, 48, m.LeadTimeRatio)
}

func TestCalculateTranscriptMetrics_ZeroWordsDefaultsToEvenSplit(t *testing.T) {
	cases := []domain.ConversationTranscript{
		{},
		transcriptOf(agent(""), lead("   ")),
		transcriptOf(domain.TranscriptMessage{Role: domain.RoleSystem, Content: "only system text"}),
	}
	for _, tc := range cases {
		m := CalculateTranscriptMetrics(tc)
		require.Equal(t, 50, m.AgentTimeRatio)
		require.Equal(t, 50, m.LeadTimeRatio)
	}
}

func TestCalculateTranscriptMetrics_RatiosSumTo100(t *testing.T) {
	for agentWords := 0; agentWords <= 17; agentWords++ {
		for leadWords := 0; leadWords <= 13; leadWords++ {
			if agentWords+leadWords == 0 {
				continue
			}
			m := CalculateTranscriptMetrics(transcriptOf(
				agent(strings.Repeat("palabra ", agentWords)),
				lead(strings.Repeat("palabra ", leadWords)),
			))
			require.Equal(t, 100, m.AgentTimeRatio+m.LeadTimeRatio, "agent=%d lead=%d", agentWords, leadWords)
			require.GreaterOrEqual(t, m.AgentTimeRatio, 0)
			require.LessOrEqual(t, m.AgentTimeRatio, 100)
		}
	}
}

func TestCalculateTranscriptMetrics_QuestionNeedsLiteralMark(t *testing.T) {
	m := CalculateTranscriptMetrics(transcriptOf(
		lead("¿Cuánto cuesta?"),
		lead("Quisiera saber el precio"),
		lead("¿Y el soporte? ¿Incluido?"),
	))
	require.Equal(t, 2, m.LeadQuestions)
	require.Equal(t, 2, m.TotalQuestions)
}

func TestTranscriptMetrics_TalkTimeRatioSumsToOne(t *testing.T) {
	m := CalculateTranscriptMetrics(transcriptOf(agent("uno dos tres"), lead("cuatro dos tres cinco seis siete")))
	ratio := m.TalkTimeRatio()
	require.InDelta(t, 1.0, ratio.Agent+ratio.Client, 1e-9)
	require.InDelta(t, 0.33, ratio.Agent, 1e-9)
}
