package actions

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"call-insights/internal/domain"
)

// generator scans one signal category. Generators are independent and never
// fail; absent inputs yield no candidates.
type generator func(a domain.ConversationAnalysis) []domain.IntelligentAction

func (r Rule) action(reasoning string, metadata map[string]string) domain.IntelligentAction {
	return domain.IntelligentAction{
		Type:        r.Type,
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority,
		Urgency:     r.Urgency,
		Reasoning:   reasoning,
		Template:    r.Template,
		Metadata:    metadata,
	}
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func scanRules(rules []Rule, entries []string, reasonFmt, metaKey string) []domain.IntelligentAction {
	var out []domain.IntelligentAction
	for _, entry := range nonBlank(entries) {
		for _, r := range rules {
			if r.Matcher == nil || !r.Matcher.Match(entry) {
				continue
			}
			out = append(out, r.action(fmt.Sprintf(reasonFmt, entry), map[string]string{
				metaKey: entry,
				"rule":  r.Name,
			}))
		}
	}
	return out
}

func buyingSignalGenerator(rules []Rule) generator {
	return func(a domain.ConversationAnalysis) []domain.IntelligentAction {
		return scanRules(rules, a.BuyingSignals, "Señal de compra detectada: %q", "signal")
	}
}

func objectionGenerator(rules []Rule) generator {
	return func(a domain.ConversationAnalysis) []domain.IntelligentAction {
		return scanRules(rules, a.Objections, "Objeción detectada: %q", "objection")
	}
}

// interestScore derives a 0-10 score from the sentiment score, falling back
// to the model's interest level.
func interestScore(a domain.ConversationAnalysis) (int, bool) {
	if a.SentimentScore != nil && !math.IsNaN(*a.SentimentScore) {
		s := int(math.Round((*a.SentimentScore + 1) * 5))
		return min(max(s, 0), 10), true
	}
	if a.LeadInterestLevel != nil {
		return min(max(*a.LeadInterestLevel, 0), 10), true
	}
	return 0, false
}

func interestGenerator(a domain.ConversationAnalysis) []domain.IntelligentAction {
	score, ok := interestScore(a)
	if !ok {
		return nil
	}
	reasoning := fmt.Sprintf("Nivel de interés estimado: %d/10", score)
	meta := map[string]string{"interestScore": strconv.Itoa(score)}
	switch {
	case score >= 8:
		return []domain.IntelligentAction{
			{
				Type:        domain.ActionSendContract,
				Title:       "Enviar contrato",
				Description: "El interés es muy alto. Envía el contrato para cerrar mientras la decisión está fresca.",
				Priority:    domain.PriorityHigh,
				Urgency:     domain.UrgencyToday,
				Reasoning:   reasoning,
				Metadata:    meta,
			},
			{
				Type:        domain.ActionScheduleTrial,
				Title:       "Programar periodo de prueba",
				Description: "Ofrece una prueba guiada para que el equipo del lead valide la solución.",
				Priority:    domain.PriorityHigh,
				Urgency:     domain.UrgencyThisWeek,
				Reasoning:   reasoning,
				Metadata:    maps.Clone(meta),
			},
		}
	case score >= 5:
		return []domain.IntelligentAction{{
			Type:        domain.ActionSendCaseStudy,
			Title:       "Compartir caso de éxito",
			Description: "El interés es moderado. Un caso de éxito comparable puede inclinar la decisión.",
			Priority:    domain.PriorityMedium,
			Urgency:     domain.UrgencyThisWeek,
			Reasoning:   reasoning,
			Metadata:    meta,
		}}
	default:
		return []domain.IntelligentAction{{
			Type:        domain.ActionMakeFollowUpCall,
			Title:       "Realizar llamada de seguimiento",
			Description: "El interés es bajo. Agenda una llamada breve para entender qué frena al lead.",
			Priority:    domain.PriorityMedium,
			Urgency:     domain.UrgencyNextWeek,
			Reasoning:   reasoning,
			Metadata:    meta,
		}}
	}
}

func sentimentGenerator(a domain.ConversationAnalysis) []domain.IntelligentAction {
	reasoning := fmt.Sprintf("Sentimiento general de la llamada: %s", a.OverallSentiment)
	switch a.OverallSentiment {
	case domain.SentimentPositive:
		return []domain.IntelligentAction{{
			Type:        domain.ActionScheduleMeeting,
			Title:       "Agendar reunión",
			Description: "La conversación fue positiva. Aprovecha el momento para fijar el siguiente paso.",
			Priority:    domain.PriorityHigh,
			Urgency:     domain.UrgencyImmediate,
			Reasoning:   reasoning,
		}}
	case domain.SentimentNegative:
		return []domain.IntelligentAction{{
			Type:        domain.ActionAddressObjection,
			Title:       "Atender objeciones",
			Description: "La conversación fue negativa. Contacta al lead para resolver sus preocupaciones.",
			Priority:    domain.PriorityHigh,
			Urgency:     domain.UrgencyImmediate,
			Reasoning:   reasoning,
		}}
	case domain.SentimentNeutral:
		return []domain.IntelligentAction{{
			Type:        domain.ActionSendDemoLink,
			Title:       "Enviar enlace de demo",
			Description: "La conversación fue neutral. Una demo puede despertar más interés.",
			Priority:    domain.PriorityMedium,
			Urgency:     domain.UrgencyThisWeek,
			Reasoning:   reasoning,
		}}
	case domain.SentimentMixed:
		return []domain.IntelligentAction{{
			Type:        domain.ActionMakeFollowUpCall,
			Title:       "Realizar llamada de seguimiento",
			Description: "La conversación tuvo señales mixtas. Llama para aclarar dudas pendientes.",
			Priority:    domain.PriorityMedium,
			Urgency:     domain.UrgencyToday,
			Reasoning:   reasoning,
		}}
	default:
		return nil
	}
}

func conversionGenerator(a domain.ConversationAnalysis) []domain.IntelligentAction {
	if a.ConversionLikelihood == nil || math.IsNaN(*a.ConversionLikelihood) {
		return nil
	}
	// Tiers compare the unrounded percentage; the epsilon absorbs float noise
	// such as 0.7*100.
	raw := *a.ConversionLikelihood*100 + 1e-9
	pct := int(math.Floor(raw))
	reasoning := fmt.Sprintf("Probabilidad de conversión: %d%%", pct)
	meta := map[string]string{"conversionLikelihood": strconv.Itoa(pct)}
	switch {
	case raw >= 70:
		return []domain.IntelligentAction{{
			Type:        domain.ActionSendContract,
			Title:       "Enviar contrato",
			Description: "La probabilidad de cierre es alta. Envía el contrato hoy.",
			Priority:    domain.PriorityHigh,
			Urgency:     domain.UrgencyToday,
			Reasoning:   reasoning,
			Metadata:    meta,
		}}
	case raw >= 40:
		return []domain.IntelligentAction{{
			Type:        domain.ActionSendProposal,
			Title:       "Enviar propuesta comercial",
			Description: "La probabilidad de cierre es media. Una propuesta concreta ayuda a avanzar.",
			Priority:    domain.PriorityMedium,
			Urgency:     domain.UrgencyThisWeek,
			Reasoning:   reasoning,
			Metadata:    meta,
		}}
	default:
		return []domain.IntelligentAction{{
			Type:        domain.ActionNurtureSequence,
			Title:       "Incluir en secuencia de nurturing",
			Description: "La probabilidad de cierre es baja. Mantén el contacto con contenido de valor.",
			Priority:    domain.PriorityLow,
			Urgency:     domain.UrgencyNextWeek,
			Reasoning:   reasoning,
			Metadata:    meta,
		}}
	}
}

func competitorGenerator(a domain.ConversationAnalysis) []domain.IntelligentAction {
	competitors := nonBlank(a.CompetitorMentions)
	if len(competitors) == 0 {
		return nil
	}
	names := strings.Join(competitors, ", ")
	reasoning := "Competidores mencionados: " + names
	return []domain.IntelligentAction{
		{
			Type:        domain.ActionSendComparison,
			Title:       "Enviar comparativa",
			Description: "El lead mencionó a la competencia. Envía una comparativa de funcionalidades y precio.",
			Priority:    domain.PriorityHigh,
			Urgency:     domain.UrgencyThisWeek,
			Reasoning:   reasoning,
			Metadata:    map[string]string{"competitors": names},
		},
		{
			Type:        domain.ActionSendReferences,
			Title:       "Enviar referencias de clientes",
			Description: "Comparte referencias de clientes que migraron desde la competencia.",
			Priority:    domain.PriorityMedium,
			Urgency:     domain.UrgencyThisWeek,
			Reasoning:   reasoning,
			Metadata:    map[string]string{"competitors": names},
		},
	}
}

func painPointGenerator(a domain.ConversationAnalysis) []domain.IntelligentAction {
	var out []domain.IntelligentAction
	for _, p := range nonBlank(a.MainPainPoints) {
		out = append(out, domain.IntelligentAction{
			Type:        domain.ActionSendCaseStudy,
			Title:       "Compartir caso de éxito",
			Description: "Comparte un caso de éxito que resuelva este punto de dolor.",
			Priority:    domain.PriorityMedium,
			Urgency:     domain.UrgencyThisWeek,
			Reasoning:   fmt.Sprintf("Punto de dolor identificado: %q", p),
			Metadata:    map[string]string{"painPoint": p},
		})
	}
	return out
}
