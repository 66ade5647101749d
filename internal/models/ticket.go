package models

// RawTicket is a ticket record as returned by the helpdesk API. Only the
// fields the analyzer reads are mapped; everything else is ignored on decode.
type RawTicket struct {
	ID         int64        `json:"id"`
	DisplayID  string       `json:"display_id,omitempty"`
	Subject    string       `json:"subject"`
	Priority   int          `json:"priority"`
	Status     int          `json:"status"`
	StatusName string       `json:"status_name,omitempty"`
	Requester  *Requester   `json:"requester,omitempty"`
	Stats      *TicketStats `json:"stats,omitempty"`
	CreatedAt  string       `json:"created_at"`
	UpdatedAt  string       `json:"updated_at"`
}

// Requester identifies the person who raised a ticket.
type Requester struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Location string `json:"location,omitempty"`
}

// TicketStats is the response-stats sub-object attached to a raw ticket.
// Pointer fields distinguish "absent" from zero values.
type TicketStats struct {
	AgentRespondedAt    *string  `json:"agent_responded_at"`
	FirstRespondedAt    *string  `json:"first_responded_at"`
	OutboundCount       int      `json:"outbound_count"`
	FirstRespTimeInSecs *float64 `json:"first_resp_time_in_secs"`
}

// Attendance status values for an analyzed ticket.
const (
	AttendanceFresh   = "FRESH"
	AttendanceReplied = "REPLIED"
)

// AnalyzedTicket is the normalized output record for a single ticket.
type AnalyzedTicket struct {
	TicketID            string `json:"ticket_id"`
	Subject             string `json:"subject"`
	Priority            string `json:"priority"`
	RequesterName       string `json:"requester_name"`
	RequesterLocation   string `json:"requester_location"`
	Status              string `json:"status"`
	AttendanceStatus    string `json:"attendance_status"`
	ResponseTimeMinutes *int   `json:"response_time_minutes"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

// TicketSummary holds the aggregate counters for one analysis run.
type TicketSummary struct {
	FreshTickets   int `json:"fresh_tickets"`
	RepliedTickets int `json:"replied_tickets"`
	P1Count        int `json:"p1_count"`
	P2Count        int `json:"p2_count"`
	P3Count        int `json:"p3_count"`
	P4Count        int `json:"p4_count"`
}

// AnalysisResult is the full aggregate response object. Tickets keep the
// API return order (creation-time descending).
type AnalysisResult struct {
	AnalysisTimestamp string           `json:"analysis_timestamp"`
	TotalTickets      int              `json:"total_tickets"`
	Summary           TicketSummary    `json:"summary"`
	Tickets           []AnalyzedTicket `json:"tickets"`
}
