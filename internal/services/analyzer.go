package services

import (
	"fmt"
	"math"
	"time"

	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/models"
)

const (
	defaultSubjectMaxLength = 100

	defaultSubject   = "No subject"
	defaultRequester = "Unknown"
	defaultLocation  = "Unknown"
	defaultStatus    = "Unknown"
)

// Numeric priority codes map inverted: the highest raw code is the most
// urgent label. This mirrors the upstream convention and is intentional.
var priorityLabels = map[int]string{
	1: "P4",
	2: "P3",
	3: "P2",
	4: "P1",
}

// Fallback labels for numeric status codes when no status name is present.
var statusLabels = map[int]string{
	2: "Open",
	3: "Pending",
	4: "Resolved",
	5: "Closed",
}

// analyzer is the local, deterministic ticket analyzer.
type analyzer struct {
	subjectMaxLength int
	now              func() time.Time
}

// NewAnalyzer creates the local analyzer. subjectMaxLength bounds the
// subject field of each analyzed ticket; zero selects the default of 100.
func NewAnalyzer(subjectMaxLength int) interfaces.TicketAnalyzer {
	if subjectMaxLength <= 0 {
		subjectMaxLength = defaultSubjectMaxLength
	}
	return &analyzer{
		subjectMaxLength: subjectMaxLength,
		now:              time.Now,
	}
}

// Analyze normalizes every raw ticket and aggregates the summary counters
// in a single pass. It never fails: missing optional fields map to
// documented defaults.
func (a *analyzer) Analyze(tickets []models.RawTicket) *models.AnalysisResult {
	result := &models.AnalysisResult{
		AnalysisTimestamp: a.now().UTC().Format(time.RFC3339),
		TotalTickets:      len(tickets),
		Tickets:           make([]models.AnalyzedTicket, 0, len(tickets)),
	}

	for i := range tickets {
		analyzed := a.analyzeTicket(&tickets[i])
		result.Tickets = append(result.Tickets, analyzed)

		if analyzed.AttendanceStatus == models.AttendanceFresh {
			result.Summary.FreshTickets++
		} else {
			result.Summary.RepliedTickets++
		}

		switch analyzed.Priority {
		case "P1":
			result.Summary.P1Count++
		case "P2":
			result.Summary.P2Count++
		case "P3":
			result.Summary.P3Count++
		default:
			result.Summary.P4Count++
		}
	}

	return result
}

func (a *analyzer) analyzeTicket(ticket *models.RawTicket) models.AnalyzedTicket {
	analyzed := models.AnalyzedTicket{
		TicketID:            ticketID(ticket),
		Subject:             a.subject(ticket),
		Priority:            priorityLabel(ticket.Priority),
		RequesterName:       defaultRequester,
		RequesterLocation:   defaultLocation,
		Status:              statusLabel(ticket),
		AttendanceStatus:    attendanceStatus(ticket.Stats),
		ResponseTimeMinutes: responseTimeMinutes(ticket.Stats),
		CreatedAt:           ticket.CreatedAt,
		UpdatedAt:           ticket.UpdatedAt,
	}

	if ticket.Requester != nil {
		if ticket.Requester.Name != "" {
			analyzed.RequesterName = ticket.Requester.Name
		}
		if ticket.Requester.Location != "" {
			analyzed.RequesterLocation = ticket.Requester.Location
		}
	}

	return analyzed
}

// ticketID prefers the human-readable display ID, falling back to the
// numeric ID prefixed with '#'.
func ticketID(ticket *models.RawTicket) string {
	if ticket.DisplayID != "" {
		return ticket.DisplayID
	}
	return fmt.Sprintf("#%d", ticket.ID)
}

// subject truncates to the configured limit. The default placeholder is
// never truncated.
func (a *analyzer) subject(ticket *models.RawTicket) string {
	if ticket.Subject == "" {
		return defaultSubject
	}
	runes := []rune(ticket.Subject)
	if len(runes) > a.subjectMaxLength {
		return string(runes[:a.subjectMaxLength])
	}
	return ticket.Subject
}

func priorityLabel(code int) string {
	if label, ok := priorityLabels[code]; ok {
		return label
	}
	return "P4"
}

func statusLabel(ticket *models.RawTicket) string {
	if ticket.StatusName != "" {
		return ticket.StatusName
	}
	if label, ok := statusLabels[ticket.Status]; ok {
		return label
	}
	if ticket.Status != 0 {
		return fmt.Sprintf("Status %d", ticket.Status)
	}
	return defaultStatus
}

// attendanceStatus classifies a ticket as FRESH when no agent has
// responded and at most one outbound message exists.
func attendanceStatus(stats *models.TicketStats) string {
	if stats == nil {
		return models.AttendanceFresh
	}
	if stats.AgentRespondedAt == nil && stats.OutboundCount <= 1 {
		return models.AttendanceFresh
	}
	return models.AttendanceReplied
}

// responseTimeMinutes converts the first response time to whole minutes
// with round-half-up semantics, or nil when the ticket has no response.
func responseTimeMinutes(stats *models.TicketStats) *int {
	if stats == nil || stats.FirstRespTimeInSecs == nil {
		return nil
	}
	minutes := int(math.Round(*stats.FirstRespTimeInSecs / 60.0))
	return &minutes
}
