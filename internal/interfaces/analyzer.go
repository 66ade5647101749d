package interfaces

import (
	"context"

	"aktis-analyzer-freshservice/internal/models"
)

// TicketFilter describes one paginated ticket query: tickets created
// within the last WindowMinutes for the configured group (and workspace,
// when enabled).
type TicketFilter struct {
	WindowMinutes int
	GroupID       int64
	WorkspaceID   int64
}

// SessionProvider owns the process-wide session and its lifecycle.
type SessionProvider interface {
	// EnsureValidSession returns a usable credential, performing a login
	// when the cached cookie session is missing or expired. API-key mode
	// derives the session from configuration on every call.
	EnsureValidSession(ctx context.Context) (*models.Session, error)
	// Login forces a fresh browser login regardless of the cached session.
	Login(ctx context.Context) (*models.Session, error)
	// SetCookies installs a manually supplied cookie header value.
	SetCookies(cookies string) (*models.Session, error)
	// Invalidate drops the cached session; the next EnsureValidSession
	// call triggers a fresh login.
	Invalidate()
	// Current returns the cached session without refreshing it, or nil.
	Current() *models.Session
	// Mode reports the configured session mode ("apikey" or "cookie").
	Mode() string
}

// BrowserAuthenticator drives an interactive login and returns the
// resulting cookie set as a single header value.
type BrowserAuthenticator interface {
	Login(ctx context.Context) (string, error)
}

// TicketFetcher pages through the filtered ticket listing until a short
// page signals exhaustion.
type TicketFetcher interface {
	FetchTickets(ctx context.Context, filter TicketFilter) ([]models.RawTicket, error)
}

// TicketAnalyzer maps raw tickets to an AnalysisResult. The local
// implementation is pure and total; the oracle implementation may fail
// and callers must fall back to the local one.
type TicketAnalyzer interface {
	Analyze(tickets []models.RawTicket) *models.AnalysisResult
}

// OracleAnalyzer delegates analysis to an external text-generation
// service. Any error means "use the local analyzer instead".
type OracleAnalyzer interface {
	Analyze(ctx context.Context, tickets []models.RawTicket) (*models.AnalysisResult, error)
}

// Storage persists sessions and the latest analysis snapshot between runs.
type Storage interface {
	SaveSession(key string, session *models.Session) error
	LoadSession(key string) (*models.Session, error)
	DeleteSession(key string) error
	SaveBrowserCookies(key string, cookies []models.BrowserCookie) error
	LoadBrowserCookies(key string) ([]models.BrowserCookie, error)
	SaveLastAnalysis(result *models.AnalysisResult) error
	LoadLastAnalysis() (*models.AnalysisResult, error)
	Close() error
}

// WebService is the HTTP server lifecycle.
type WebService interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}
