package actions

import "call-insights/internal/domain"

// Rule turns a matching insight entry into one candidate action.
type Rule struct {
	Name        string
	Matcher     Matcher
	Type        domain.ActionType
	Title       string
	Description string
	Priority    domain.Priority
	Urgency     domain.Urgency
	Template    string
}

// Rulebook holds the keyword tables scanned by the buying-signal and objection
// generators. Swap it to localize the engine.
type Rulebook struct {
	BuyingSignals []Rule
	Objections    []Rule
}

// DefaultRulebook is tuned for Spanish calls, with English cues for mixed
// transcripts.
func DefaultRulebook() Rulebook {
	return Rulebook{
		BuyingSignals: []Rule{
			{
				Name:        "meeting",
				Matcher:     Keywords("reunión", "reunion", "agendar", "cita", "juntarnos", "meeting"),
				Type:        domain.ActionScheduleMeeting,
				Title:       "Agendar reunión",
				Description: "El lead propuso reunirse. Confirma fecha y hora antes de que se enfríe el interés.",
				Priority:    domain.PriorityHigh,
				Urgency:     domain.UrgencyImmediate,
				Template:    "Hola, gracias por tu tiempo. ¿Te viene bien reunirnos el día que mencionaste? Te envío la invitación.",
			},
			{
				Name:        "demo",
				Matcher:     AnyOf{MustRegex(`\bdemos?\b`), Keywords("demostración", "demostracion", "ver el producto", "ver cómo funciona", "ver como funciona")},
				Type:        domain.ActionSendDemoLink,
				Title:       "Enviar enlace de demo",
				Description: "El lead quiere ver el producto en acción. Comparte el enlace de la demo grabada o en vivo.",
				Priority:    domain.PriorityHigh,
				Urgency:     domain.UrgencyToday,
				Template:    "Como conversamos, aquí tienes el enlace para ver la demo: {{demo_link}}",
			},
			{
				Name:        "budget",
				Matcher:     AnyOf{MustRegex(`\bprecios?\b`), Keywords("presupuesto", "cotización", "cotizacion", "propuesta", "budget", "quote", "pricing")},
				Type:        domain.ActionSendProposal,
				Title:       "Enviar propuesta comercial",
				Description: "El lead habló de presupuesto. Envía una propuesta con precios y condiciones.",
				Priority:    domain.PriorityHigh,
				Urgency:     domain.UrgencyToday,
			},
			{
				Name:        "implementation",
				Matcher:     Keywords("implementación", "implementacion", "implementar", "integración", "integracion", "integrar", "técnic", "tecnic", "implementation", "integration"),
				Type:        domain.ActionScheduleTechnicalCall,
				Title:       "Agendar llamada técnica",
				Description: "El lead preguntó por la implementación. Coordina una llamada con el equipo técnico.",
				Priority:    domain.PriorityMedium,
				Urgency:     domain.UrgencyThisWeek,
			},
		},
		Objections: []Rule{
			{
				Name:        "price",
				Matcher:     AnyOf{MustRegex(`\b(precios?|car[oa]s?|barat[oa]s?)\b`), Keywords("costo", "coste", "presupuesto", "expensive", "price", "cost")},
				Type:        domain.ActionSendROICalculator,
				Title:       "Enviar calculadora de ROI",
				Description: "El precio es una objeción. Muestra el retorno de la inversión con números del propio lead.",
				Priority:    domain.PriorityHigh,
				Urgency:     domain.UrgencyToday,
				Template:    "Preparé un cálculo del retorno estimado para tu caso: {{roi_link}}",
			},
			{
				Name:        "competitor",
				Matcher:     Keywords("competencia", "competidor", "otro proveedor", "otra empresa", "ya usamos", "ya tenemos", "competitor", "alternative"),
				Type:        domain.ActionSendComparison,
				Title:       "Enviar comparativa",
				Description: "El lead compara con otra solución. Envía una comparativa honesta de funcionalidades y precio.",
				Priority:    domain.PriorityHigh,
				Urgency:     domain.UrgencyThisWeek,
			},
			{
				Name:        "complexity",
				Matcher:     Keywords("complejo", "complicado", "difícil", "dificil", "curva de aprendizaje", "complex", "complicated", "difficult"),
				Type:        domain.ActionSendCaseStudy,
				Title:       "Compartir caso de éxito",
				Description: "Al lead le preocupa la complejidad. Comparte un caso de éxito de un cliente similar.",
				Priority:    domain.PriorityMedium,
				Urgency:     domain.UrgencyThisWeek,
			},
			{
				Name:        "authority",
				Matcher:     Keywords("jefe", "gerente", "director", "socio", "decisión", "decision", "consultar", "aprobar", "aprobación", "boss", "manager"),
				Type:        domain.ActionScheduleMeeting,
				Title:       "Agendar reunión con el decisor",
				Description: "El lead no decide solo. Propón una reunión que incluya a quien aprueba la compra.",
				Priority:    domain.PriorityHigh,
				Urgency:     domain.UrgencyThisWeek,
			},
		},
	}
}
