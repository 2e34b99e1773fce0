package domain

// ActionType is the closed set of follow-up actions the rule engine can emit.
type ActionType string

const (
	ActionScheduleMeeting       ActionType = "schedule_meeting"
	ActionSendDemoLink          ActionType = "send_demo_link"
	ActionSendProposal          ActionType = "send_proposal"
	ActionScheduleTechnicalCall ActionType = "schedule_technical_call"
	ActionSendROICalculator     ActionType = "send_roi_calculator"
	ActionSendComparison        ActionType = "send_comparison"
	ActionSendCaseStudy         ActionType = "send_case_study"
	ActionSendContract          ActionType = "send_contract"
	ActionScheduleTrial         ActionType = "schedule_trial"
	ActionMakeFollowUpCall      ActionType = "make_followup_call"
	ActionAddressObjection      ActionType = "address_objection"
	ActionNurtureSequence       ActionType = "nurture_sequence"
	ActionSendReferences        ActionType = "send_references"
	ActionSendEmail             ActionType = "send_email"
	ActionEscalateToManager     ActionType = "escalate_to_manager"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyToday     Urgency = "today"
	UrgencyThisWeek  Urgency = "this_week"
	UrgencyNextWeek  Urgency = "next_week"
)

// IntelligentAction is a typed next-step recommendation. Actions are created
// per analysis run and are never persisted by the engine itself.
type IntelligentAction struct {
	ID          string            `json:"id"`
	Type        ActionType        `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Priority    Priority          `json:"priority"`
	Urgency     Urgency           `json:"urgency"`
	Reasoning   string            `json:"reasoning"`
	Template    string            `json:"template,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
