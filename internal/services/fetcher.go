package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"github.com/ternarybob/arbor"
)

const ticketFilterPath = "/api/v2/tickets/filter"

type ticketListResponse struct {
	Tickets []models.RawTicket `json:"tickets"`
	Total   int                `json:"total"`
}

type ticketFetcher struct {
	client   *resty.Client
	config   *common.HelpdeskConfig
	sessions interfaces.SessionProvider
	logger   arbor.ILogger
	now      func() time.Time
}

// NewTicketFetcher creates the paginated ticket fetcher.
func NewTicketFetcher(config *common.HelpdeskConfig, sessions interfaces.SessionProvider, logger arbor.ILogger) interfaces.TicketFetcher {
	client := resty.New().
		SetBaseURL(config.BaseURL()).
		SetTimeout(time.Duration(config.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ticketFetcher{
		client:   client,
		config:   config,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// FetchTickets pages through the filtered listing until a short page
// signals exhaustion. An authorization-denied response triggers exactly
// one re-login and one full retry from page 1; a second denial is fatal.
func (tf *ticketFetcher) FetchTickets(ctx context.Context, filter interfaces.TicketFilter) ([]models.RawTicket, error) {
	tickets, err := tf.fetchAllPages(ctx, filter)
	if err == nil {
		return tickets, nil
	}

	var analyzerErr *common.AnalyzerError
	if errors.As(err, &analyzerErr) && analyzerErr.Type == common.ErrorTypeAuthExpired {
		tf.logger.Warn().Msg("Helpdesk session rejected mid-fetch, re-authenticating")
		tf.sessions.Invalidate()
		if _, loginErr := tf.sessions.EnsureValidSession(ctx); loginErr != nil {
			return nil, loginErr
		}
		return tf.fetchAllPages(ctx, filter)
	}

	return nil, err
}

func (tf *ticketFetcher) fetchAllPages(ctx context.Context, filter interfaces.TicketFilter) ([]models.RawTicket, error) {
	session, err := tf.sessions.EnsureValidSession(ctx)
	if err != nil {
		return nil, err
	}

	query := tf.buildQuery(filter)
	pageSize := tf.config.PageSize

	var all []models.RawTicket
	page := 1

	for {
		batch, err := tf.fetchPage(ctx, session, filter, query, page)
		if err != nil {
			return nil, err
		}

		all = append(all, batch...)

		tf.logger.Debug().
			Int("page", page).
			Int("batch", len(batch)).
			Int("total", len(all)).
			Msg("Fetched ticket page")

		// A short page, including an empty one, is taken as the last page.
		// This is a heuristic and can under-fetch when a boundary lands
		// exactly on a page-size multiple; accepted approximation.
		if len(batch) < pageSize {
			break
		}
		page++
	}

	return all, nil
}

func (tf *ticketFetcher) fetchPage(ctx context.Context, session *models.Session, filter interfaces.TicketFilter, query string, page int) ([]models.RawTicket, error) {
	var tickets []models.RawTicket

	backoff := retry.WithMaxRetries(uint64(tf.config.RetryAttempts),
		retry.NewExponential(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var listing ticketListResponse

		request := tf.client.R().
			SetContext(ctx).
			SetQueryParam("query", fmt.Sprintf("%q", query)).
			SetQueryParam("page", strconv.Itoa(page)).
			SetQueryParam("per_page", strconv.Itoa(tf.config.PageSize)).
			SetResult(&listing)

		if filter.WorkspaceID > 0 && !tf.config.IncludeWorkspaceInQuery {
			request.SetQueryParam("workspace_id", strconv.FormatInt(filter.WorkspaceID, 10))
		}

		switch session.Kind {
		case models.SessionKindAPIKey:
			request.SetHeader("Authorization", session.AuthHeader)
		case models.SessionKindCookie:
			request.SetHeader("Cookie", session.Cookies)
		}

		resp, err := request.Get(ticketFilterPath)
		if err != nil {
			// Transport failure: fail fast unless retries are configured
			return retry.RetryableError(common.WrapError(err, common.ErrorTypeNetwork,
				"ticket_fetch", "helpdesk request failed"))
		}

		switch {
		case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
			return common.NewAuthExpiredError("session_rejected",
				"helpdesk rejected the session").WithContext("status", resp.StatusCode())
		case resp.StatusCode() != http.StatusOK:
			return common.NewUpstreamError("unexpected_status",
				fmt.Sprintf("helpdesk API returned status %d", resp.StatusCode()), resp.StatusCode())
		}

		tickets = listing.Tickets
		return nil
	})

	if err != nil {
		var analyzerErr *common.AnalyzerError
		if !errors.As(err, &analyzerErr) {
			return nil, common.WrapError(err, common.ErrorTypeNetwork, "ticket_fetch",
				"helpdesk request failed")
		}
		return nil, err
	}

	return tickets, nil
}

// buildQuery constructs the server-side filter expression: created within
// the window, for the configured group and (optionally) workspace.
func (tf *ticketFetcher) buildQuery(filter interfaces.TicketFilter) string {
	since := tf.now().Add(-time.Duration(filter.WindowMinutes) * time.Minute)

	parts := []string{fmt.Sprintf("created_at:>'%s'", since.UTC().Format(time.RFC3339))}

	if filter.GroupID > 0 {
		parts = append(parts, fmt.Sprintf("group_id:%d", filter.GroupID))
	}
	if filter.WorkspaceID > 0 && tf.config.IncludeWorkspaceInQuery {
		parts = append(parts, fmt.Sprintf("workspace_id:%d", filter.WorkspaceID))
	}

	return strings.Join(parts, " AND ")
}
