package services

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/models"

	"github.com/ternarybob/arbor"
)

// Storage key for the persisted helpdesk cookie session.
const helpdeskSessionKey = "helpdesk"

type sessionProvider struct {
	config        *common.HelpdeskConfig
	authenticator interfaces.BrowserAuthenticator
	storage       interfaces.Storage
	logger        arbor.ILogger

	// mu serializes session refresh: concurrent callers hitting an expired
	// session wait for the in-flight login instead of starting their own.
	mu      sync.Mutex
	current *models.Session
	now     func() time.Time
}

// NewSessionProvider creates the session provider. storage may be nil
// (sessions then live only in memory); authenticator may be nil when only
// API-key or manual-cookie modes are used.
func NewSessionProvider(config *common.HelpdeskConfig, authenticator interfaces.BrowserAuthenticator, storage interfaces.Storage, logger arbor.ILogger) interfaces.SessionProvider {
	sp := &sessionProvider{
		config:        config,
		authenticator: authenticator,
		storage:       storage,
		logger:        logger,
		now:           time.Now,
	}

	if storage != nil {
		if session, err := storage.LoadSession(helpdeskSessionKey); err == nil && session != nil {
			if !session.IsExpired(sp.ttl()) {
				sp.current = session
				logger.Info().
					Str("acquired_at", session.AcquiredAt.Format(time.RFC3339)).
					Msg("Restored persisted helpdesk session")
			}
		}
	}

	return sp
}

func (sp *sessionProvider) ttl() time.Duration {
	return time.Duration(sp.config.SessionTTLMinutes) * time.Minute
}

func (sp *sessionProvider) Mode() string {
	return sp.config.AuthMode()
}

// EnsureValidSession returns a usable credential, logging in when needed.
func (sp *sessionProvider) EnsureValidSession(ctx context.Context) (*models.Session, error) {
	if sp.config.AuthMode() == "apikey" {
		return sp.apiKeySession()
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.current != nil && !sp.current.IsExpired(sp.ttl()) {
		return sp.current, nil
	}

	return sp.loginLocked(ctx)
}

// apiKeySession is re-derived from configuration each time; it never
// expires and holds no state.
func (sp *sessionProvider) apiKeySession() (*models.Session, error) {
	if sp.config.APIKey == "" {
		return nil, common.NewConfigurationError("missing_api_key", "no helpdesk API key configured")
	}
	return &models.Session{
		Kind:       models.SessionKindAPIKey,
		AuthHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(sp.config.APIKey+":X")),
		AcquiredAt: sp.now(),
	}, nil
}

// Login forces a fresh browser login, replacing any cached session.
func (sp *sessionProvider) Login(ctx context.Context) (*models.Session, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.loginLocked(ctx)
}

func (sp *sessionProvider) loginLocked(ctx context.Context) (*models.Session, error) {
	if !sp.config.HasCredentials() {
		return nil, common.NewConfigurationError("missing_credentials",
			"no helpdesk credentials configured for browser login")
	}
	if sp.authenticator == nil {
		return nil, common.NewConfigurationError("no_authenticator",
			"browser login is not available in this mode")
	}

	sp.logger.Info().Str("domain", sp.config.Domain).Msg("Performing helpdesk login")

	cookies, err := sp.authenticator.Login(ctx)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		Kind:       models.SessionKindCookie,
		Cookies:    cookies,
		AcquiredAt: sp.now(),
	}
	sp.current = session
	sp.persist(session)

	sp.logger.Info().Msg("Helpdesk login succeeded")
	return session, nil
}

// SetCookies installs a manually supplied cookie header value.
func (sp *sessionProvider) SetCookies(cookies string) (*models.Session, error) {
	if cookies == "" {
		return nil, common.NewValidationError("missing_cookies", "cookies value is required")
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	session := &models.Session{
		Kind:       models.SessionKindCookie,
		Cookies:    cookies,
		AcquiredAt: sp.now(),
	}
	sp.current = session
	sp.persist(session)

	sp.logger.Info().Int("cookies_length", len(cookies)).Msg("Manual cookie session installed")
	return session, nil
}

// Invalidate drops the cached session immediately.
func (sp *sessionProvider) Invalidate() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.current = nil
	if sp.storage != nil {
		if err := sp.storage.DeleteSession(helpdeskSessionKey); err != nil {
			sp.logger.Warn().Err(err).Msg("Failed to delete persisted session")
		}
	}

	sp.logger.Info().Msg("Helpdesk session invalidated")
}

// Current returns the cached session without refreshing it.
func (sp *sessionProvider) Current() *models.Session {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.current
}

func (sp *sessionProvider) persist(session *models.Session) {
	if sp.storage == nil {
		return
	}
	if err := sp.storage.SaveSession(helpdeskSessionKey, session); err != nil {
		sp.logger.Warn().Err(err).Msg("Failed to persist session")
	}
}
