package services

import (
	"strings"
	"testing"
	"time"

	"aktis-analyzer-freshservice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func newTestAnalyzer() *analyzer {
	a := NewAnalyzer(0).(*analyzer)
	a.now = func() time.Time { return time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestAnalyze_Defaults(t *testing.T) {
	a := newTestAnalyzer()

	result := a.Analyze([]models.RawTicket{{ID: 42}})

	require.Len(t, result.Tickets, 1)
	ticket := result.Tickets[0]

	assert.Equal(t, "#42", ticket.TicketID)
	assert.Equal(t, "No subject", ticket.Subject)
	assert.Equal(t, "P4", ticket.Priority)
	assert.Equal(t, "Unknown", ticket.RequesterName)
	assert.Equal(t, "Unknown", ticket.RequesterLocation)
	assert.Equal(t, "Unknown", ticket.Status)
	assert.Equal(t, models.AttendanceFresh, ticket.AttendanceStatus)
	assert.Nil(t, ticket.ResponseTimeMinutes)
}

func TestAnalyze_PriorityMapping(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected string
	}{
		{"code 1 maps to P4", 1, "P4"},
		{"code 2 maps to P3", 2, "P3"},
		{"code 3 maps to P2", 3, "P2"},
		{"code 4 maps to P1", 4, "P1"},
		{"unknown code maps to P4", 99, "P4"},
		{"zero maps to P4", 0, "P4"},
		{"negative maps to P4", -1, "P4"},
	}

	a := newTestAnalyzer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.Analyze([]models.RawTicket{{ID: 1, Priority: tt.code}})
			require.Len(t, result.Tickets, 1)
			assert.Equal(t, tt.expected, result.Tickets[0].Priority)
		})
	}
}

func TestAnalyze_AttendanceStatus(t *testing.T) {
	tests := []struct {
		name     string
		stats    *models.TicketStats
		expected string
	}{
		{"no stats", nil, models.AttendanceFresh},
		{"no response, zero outbound", &models.TicketStats{OutboundCount: 0}, models.AttendanceFresh},
		{"no response, one outbound", &models.TicketStats{OutboundCount: 1}, models.AttendanceFresh},
		{"no response, two outbound", &models.TicketStats{OutboundCount: 2}, models.AttendanceReplied},
		{
			"agent responded, zero outbound",
			&models.TicketStats{AgentRespondedAt: strPtr("2025-10-06T09:00:00Z")},
			models.AttendanceReplied,
		},
		{
			"agent responded, many outbound",
			&models.TicketStats{AgentRespondedAt: strPtr("2025-10-06T09:00:00Z"), OutboundCount: 5},
			models.AttendanceReplied,
		},
	}

	a := newTestAnalyzer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.Analyze([]models.RawTicket{{ID: 1, Stats: tt.stats}})
			require.Len(t, result.Tickets, 1)
			assert.Equal(t, tt.expected, result.Tickets[0].AttendanceStatus)
		})
	}
}

func TestAnalyze_ResponseTimeMinutes(t *testing.T) {
	tests := []struct {
		name     string
		stats    *models.TicketStats
		expected *int
	}{
		{"no stats", nil, nil},
		{"no response time", &models.TicketStats{}, nil},
		{"90 seconds rounds up to 2", &models.TicketStats{FirstRespTimeInSecs: floatPtr(90)}, intPtr(2)},
		{"89 seconds rounds down to 1", &models.TicketStats{FirstRespTimeInSecs: floatPtr(89)}, intPtr(1)},
		{"exactly one minute", &models.TicketStats{FirstRespTimeInSecs: floatPtr(60)}, intPtr(1)},
		{"under half a minute rounds to 0", &models.TicketStats{FirstRespTimeInSecs: floatPtr(20)}, intPtr(0)},
		{"an hour", &models.TicketStats{FirstRespTimeInSecs: floatPtr(3600)}, intPtr(60)},
	}

	a := newTestAnalyzer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.Analyze([]models.RawTicket{{ID: 1, Stats: tt.stats}})
			require.Len(t, result.Tickets, 1)
			if tt.expected == nil {
				assert.Nil(t, result.Tickets[0].ResponseTimeMinutes)
			} else {
				require.NotNil(t, result.Tickets[0].ResponseTimeMinutes)
				assert.Equal(t, *tt.expected, *result.Tickets[0].ResponseTimeMinutes)
			}
		})
	}
}

func intPtr(i int) *int { return &i }

func TestAnalyze_SubjectTruncation(t *testing.T) {
	long := strings.Repeat("a", 150)

	tests := []struct {
		name      string
		maxLength int
		subject   string
		expected  string
	}{
		{"short subject untouched", 100, "Printer broken", "Printer broken"},
		{"long subject truncated to limit", 100, long, strings.Repeat("a", 100)},
		{"exact length untouched", 10, "abcdefghij", "abcdefghij"},
		{"custom limit applies", 5, "abcdefghij", "abcde"},
		{"multibyte runes counted, not bytes", 3, "日本語テスト", "日本語"},
		{"empty subject gets default, never truncated", 5, "", "No subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(tt.maxLength).(*analyzer)
			result := a.Analyze([]models.RawTicket{{ID: 1, Subject: tt.subject}})
			require.Len(t, result.Tickets, 1)
			assert.Equal(t, tt.expected, result.Tickets[0].Subject)
		})
	}
}

func TestAnalyze_StatusLabels(t *testing.T) {
	tests := []struct {
		name     string
		ticket   models.RawTicket
		expected string
	}{
		{"status name wins", models.RawTicket{ID: 1, Status: 2, StatusName: "Waiting on Customer"}, "Waiting on Customer"},
		{"open", models.RawTicket{ID: 1, Status: 2}, "Open"},
		{"pending", models.RawTicket{ID: 1, Status: 3}, "Pending"},
		{"resolved", models.RawTicket{ID: 1, Status: 4}, "Resolved"},
		{"closed", models.RawTicket{ID: 1, Status: 5}, "Closed"},
		{"unknown numeric code", models.RawTicket{ID: 1, Status: 17}, "Status 17"},
		{"missing status", models.RawTicket{ID: 1}, "Unknown"},
	}

	a := newTestAnalyzer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.Analyze([]models.RawTicket{tt.ticket})
			require.Len(t, result.Tickets, 1)
			assert.Equal(t, tt.expected, result.Tickets[0].Status)
		})
	}
}

func TestAnalyze_SummaryCounters(t *testing.T) {
	a := newTestAnalyzer()

	tickets := []models.RawTicket{
		{ID: 1, Priority: 4},                                                       // P1, fresh
		{ID: 2, Priority: 4, Stats: &models.TicketStats{OutboundCount: 3}},         // P1, replied
		{ID: 3, Priority: 3},                                                       // P2, fresh
		{ID: 4, Priority: 2},                                                       // P3, fresh
		{ID: 5, Priority: 1},                                                       // P4, fresh
		{ID: 6, Stats: &models.TicketStats{AgentRespondedAt: strPtr("2025-10-06T09:00:00Z")}}, // P4, replied
	}

	result := a.Analyze(tickets)

	assert.Equal(t, 6, result.TotalTickets)
	assert.Equal(t, 4, result.Summary.FreshTickets)
	assert.Equal(t, 2, result.Summary.RepliedTickets)
	assert.Equal(t, 2, result.Summary.P1Count)
	assert.Equal(t, 1, result.Summary.P2Count)
	assert.Equal(t, 1, result.Summary.P3Count)
	assert.Equal(t, 2, result.Summary.P4Count)

	// Counters always partition the total
	assert.Equal(t, result.TotalTickets, result.Summary.FreshTickets+result.Summary.RepliedTickets)
	assert.Equal(t, result.TotalTickets,
		result.Summary.P1Count+result.Summary.P2Count+result.Summary.P3Count+result.Summary.P4Count)
}

func TestAnalyze_MixedPair(t *testing.T) {
	a := newTestAnalyzer()

	result := a.Analyze([]models.RawTicket{
		{ID: 1, Priority: 4, Stats: &models.TicketStats{OutboundCount: 0}},
		{ID: 2, Priority: 1, Stats: &models.TicketStats{
			AgentRespondedAt: strPtr("2024-01-01T00:00:00Z"),
			OutboundCount:    3,
		}},
	})

	expected := models.TicketSummary{FreshTickets: 1, RepliedTickets: 1, P1Count: 1, P4Count: 1}
	assert.Equal(t, expected, result.Summary)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	a := newTestAnalyzer()

	result := a.Analyze(nil)

	assert.Equal(t, 0, result.TotalTickets)
	assert.NotNil(t, result.Tickets)
	assert.Empty(t, result.Tickets)
	assert.Equal(t, "2025-10-06T12:00:00Z", result.AnalysisTimestamp)
}

func TestAnalyze_FullTicket(t *testing.T) {
	a := newTestAnalyzer()

	tickets := []models.RawTicket{
		{
			ID:        1001,
			DisplayID: "SR-1001",
			Subject:   "VPN access request",
			Priority:  4,
			Status:    2,
			Requester: &models.Requester{Name: "Dana Mills", Location: "Sydney"},
			Stats: &models.TicketStats{
				AgentRespondedAt:    strPtr("2025-10-06T10:05:00Z"),
				FirstRespTimeInSecs: floatPtr(300),
				OutboundCount:       2,
			},
			CreatedAt: "2025-10-06T10:00:00Z",
			UpdatedAt: "2025-10-06T10:05:00Z",
		},
		{
			ID:       1002,
			Subject:  "Laptop will not boot",
			Priority: 2,
			Status:   2,
		},
	}

	result := a.Analyze(tickets)

	require.Len(t, result.Tickets, 2)

	first := result.Tickets[0]
	assert.Equal(t, "SR-1001", first.TicketID)
	assert.Equal(t, "VPN access request", first.Subject)
	assert.Equal(t, "P1", first.Priority)
	assert.Equal(t, "Dana Mills", first.RequesterName)
	assert.Equal(t, "Sydney", first.RequesterLocation)
	assert.Equal(t, "Open", first.Status)
	assert.Equal(t, models.AttendanceReplied, first.AttendanceStatus)
	require.NotNil(t, first.ResponseTimeMinutes)
	assert.Equal(t, 5, *first.ResponseTimeMinutes)
	assert.Equal(t, "2025-10-06T10:00:00Z", first.CreatedAt)

	second := result.Tickets[1]
	assert.Equal(t, "#1002", second.TicketID)
	assert.Equal(t, "P3", second.Priority)
	assert.Equal(t, models.AttendanceFresh, second.AttendanceStatus)
	assert.Nil(t, second.ResponseTimeMinutes)

	assert.Equal(t, 1, result.Summary.FreshTickets)
	assert.Equal(t, 1, result.Summary.RepliedTickets)
	assert.Equal(t, 1, result.Summary.P1Count)
	assert.Equal(t, 1, result.Summary.P3Count)
}
