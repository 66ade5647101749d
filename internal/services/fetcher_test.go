package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSessions is a scriptable SessionProvider for fetcher tests.
type fakeSessions struct {
	session     *models.Session
	ensureErr   error
	ensureCalls int
	invalidates int
}

func (f *fakeSessions) EnsureValidSession(ctx context.Context) (*models.Session, error) {
	f.ensureCalls++
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return f.session, nil
}

func (f *fakeSessions) Login(ctx context.Context) (*models.Session, error) {
	return f.session, nil
}

func (f *fakeSessions) SetCookies(cookies string) (*models.Session, error) {
	return f.session, nil
}

func (f *fakeSessions) Invalidate() {
	f.invalidates++
}

func (f *fakeSessions) Current() *models.Session {
	return f.session
}

func (f *fakeSessions) Mode() string {
	return string(f.session.Kind)
}

func apiKeySessionFixture() *models.Session {
	return &models.Session{Kind: models.SessionKindAPIKey, AuthHeader: "Basic dGVzdDpY"}
}

func ticketBatch(start, count int) []models.RawTicket {
	tickets := make([]models.RawTicket, 0, count)
	for i := 0; i < count; i++ {
		tickets = append(tickets, models.RawTicket{
			ID:      int64(start + i),
			Subject: fmt.Sprintf("Ticket %d", start+i),
		})
	}
	return tickets
}

func writeTickets(w http.ResponseWriter, tickets []models.RawTicket) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"tickets": tickets})
}

func testFilter(minutes int) interfaces.TicketFilter {
	return interfaces.TicketFilter{WindowMinutes: minutes}
}

func newFetcherConfig(serverURL string) *common.HelpdeskConfig {
	return &common.HelpdeskConfig{
		Domain:                  serverURL,
		PageSize:                100,
		TimeoutSeconds:          5,
		SessionTTLMinutes:       30,
		IncludeWorkspaceInQuery: true,
	}
}

func TestFetchTickets_Pagination(t *testing.T) {
	var requests []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		requests = append(requests, page)
		switch page {
		case 1:
			writeTickets(w, ticketBatch(1, 100))
		case 2:
			writeTickets(w, ticketBatch(101, 100))
		default:
			writeTickets(w, ticketBatch(201, 42))
		}
	}))
	defer server.Close()

	sessions := &fakeSessions{session: apiKeySessionFixture()}
	fetcher := NewTicketFetcher(newFetcherConfig(server.URL), sessions, common.GetLogger())

	tickets, err := fetcher.FetchTickets(context.Background(), testFilter(60))

	require.NoError(t, err)
	assert.Len(t, tickets, 242)
	assert.Equal(t, []int{1, 2, 3}, requests)
	assert.Equal(t, int64(1), tickets[0].ID)
	assert.Equal(t, int64(242), tickets[241].ID)
}

func TestFetchTickets_EmptyFirstPage(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeTickets(w, nil)
	}))
	defer server.Close()

	sessions := &fakeSessions{session: apiKeySessionFixture()}
	fetcher := NewTicketFetcher(newFetcherConfig(server.URL), sessions, common.GetLogger())

	tickets, err := fetcher.FetchTickets(context.Background(), testFilter(60))

	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Equal(t, 1, calls)
}

func TestFetchTickets_ReloginOnUnauthorized(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeTickets(w, ticketBatch(1, 5))
	}))
	defer server.Close()

	sessions := &fakeSessions{session: apiKeySessionFixture()}
	fetcher := NewTicketFetcher(newFetcherConfig(server.URL), sessions, common.GetLogger())

	tickets, err := fetcher.FetchTickets(context.Background(), testFilter(60))

	require.NoError(t, err)
	assert.Len(t, tickets, 5)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, sessions.invalidates)
}

func TestFetchTickets_SecondUnauthorizedIsFatal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sessions := &fakeSessions{session: apiKeySessionFixture()}
	fetcher := NewTicketFetcher(newFetcherConfig(server.URL), sessions, common.GetLogger())

	tickets, err := fetcher.FetchTickets(context.Background(), testFilter(60))

	require.Error(t, err)
	assert.Nil(t, tickets)
	// One original attempt plus exactly one retry, never a third
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, sessions.invalidates)

	var analyzerErr *common.AnalyzerError
	require.ErrorAs(t, err, &analyzerErr)
	assert.Equal(t, common.ErrorTypeAuthExpired, analyzerErr.Type)
}

func TestFetchTickets_ServerErrorIsFatal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sessions := &fakeSessions{session: apiKeySessionFixture()}
	fetcher := NewTicketFetcher(newFetcherConfig(server.URL), sessions, common.GetLogger())

	_, err := fetcher.FetchTickets(context.Background(), testFilter(60))

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var analyzerErr *common.AnalyzerError
	require.ErrorAs(t, err, &analyzerErr)
	assert.Equal(t, common.ErrorTypeUpstream, analyzerErr.Type)
}

func TestFetchTickets_AuthHeaders(t *testing.T) {
	tests := []struct {
		name         string
		session      *models.Session
		checkRequest func(t *testing.T, r *http.Request)
	}{
		{
			name:    "api key session sets Authorization",
			session: &models.Session{Kind: models.SessionKindAPIKey, AuthHeader: "Basic abc123"},
			checkRequest: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "Basic abc123", r.Header.Get("Authorization"))
				assert.Empty(t, r.Header.Get("Cookie"))
			},
		},
		{
			name:    "cookie session sets Cookie",
			session: &models.Session{Kind: models.SessionKindCookie, Cookies: "_session_id=xyz"},
			checkRequest: func(t *testing.T, r *http.Request) {
				assert.Contains(t, r.Header.Get("Cookie"), "_session_id=xyz")
				assert.Empty(t, r.Header.Get("Authorization"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.checkRequest(t, r)
				writeTickets(w, nil)
			}))
			defer server.Close()

			sessions := &fakeSessions{session: tt.session}
			fetcher := NewTicketFetcher(newFetcherConfig(server.URL), sessions, common.GetLogger())

			_, err := fetcher.FetchTickets(context.Background(), testFilter(60))
			require.NoError(t, err)
		})
	}
}

func TestFetchTickets_QueryBuilding(t *testing.T) {
	var gotQuery, gotWorkspaceParam string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotWorkspaceParam = r.URL.Query().Get("workspace_id")
		writeTickets(w, nil)
	}))
	defer server.Close()

	t.Run("workspace embedded in query expression", func(t *testing.T) {
		config := newFetcherConfig(server.URL)
		sessions := &fakeSessions{session: apiKeySessionFixture()}
		fetcher := NewTicketFetcher(config, sessions, common.GetLogger())

		filter := testFilter(60)
		filter.GroupID = 7
		filter.WorkspaceID = 3

		_, err := fetcher.FetchTickets(context.Background(), filter)
		require.NoError(t, err)

		assert.Contains(t, gotQuery, "created_at:>'")
		assert.Contains(t, gotQuery, "group_id:7")
		assert.Contains(t, gotQuery, "workspace_id:3")
		assert.Contains(t, gotQuery, " AND ")
		// Query expression is sent quoted
		assert.True(t, gotQuery[0] == '"' && gotQuery[len(gotQuery)-1] == '"')
		assert.Empty(t, gotWorkspaceParam)
	})

	t.Run("workspace as top-level parameter", func(t *testing.T) {
		config := newFetcherConfig(server.URL)
		config.IncludeWorkspaceInQuery = false
		sessions := &fakeSessions{session: apiKeySessionFixture()}
		fetcher := NewTicketFetcher(config, sessions, common.GetLogger())

		filter := testFilter(60)
		filter.WorkspaceID = 3

		_, err := fetcher.FetchTickets(context.Background(), filter)
		require.NoError(t, err)

		assert.NotContains(t, gotQuery, "workspace_id")
		assert.Equal(t, "3", gotWorkspaceParam)
	})
}

func TestFetchTickets_SessionErrorPropagates(t *testing.T) {
	sessions := &fakeSessions{
		session:   apiKeySessionFixture(),
		ensureErr: common.NewConfigurationError("missing_api_key", "no helpdesk API key configured"),
	}
	fetcher := NewTicketFetcher(newFetcherConfig("http://127.0.0.1:0"), sessions, common.GetLogger())

	_, err := fetcher.FetchTickets(context.Background(), testFilter(60))

	require.Error(t, err)
	var analyzerErr *common.AnalyzerError
	require.ErrorAs(t, err, &analyzerErr)
	assert.Equal(t, common.ErrorTypeConfiguration, analyzerErr.Type)
}
