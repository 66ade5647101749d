package services

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	cookies    string
	err        error
	loginCalls int
}

func (f *fakeAuthenticator) Login(ctx context.Context) (string, error) {
	f.loginCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.cookies, nil
}

func newSessionConfig() *common.HelpdeskConfig {
	return &common.HelpdeskConfig{
		Domain:            "example.freshservice.com",
		SessionTTLMinutes: 30,
	}
}

func TestEnsureValidSession_APIKeyMode(t *testing.T) {
	config := newSessionConfig()
	config.APIKey = "secret-key"

	sp := NewSessionProvider(config, nil, nil, common.GetLogger())

	session, err := sp.EnsureValidSession(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.SessionKindAPIKey, session.Kind)
	assert.Equal(t, "apikey", sp.Mode())

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("secret-key:X"))
	assert.Equal(t, expected, session.AuthHeader)
}

func TestEnsureValidSession_CookieModeLogsInOnce(t *testing.T) {
	config := newSessionConfig()
	config.Email = "agent@example.com"
	config.Password = "hunter2"

	auth := &fakeAuthenticator{cookies: "_session_id=abc; _helpdesk=def"}
	sp := NewSessionProvider(config, auth, nil, common.GetLogger())

	first, err := sp.EnsureValidSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionKindCookie, first.Kind)
	assert.Equal(t, "_session_id=abc; _helpdesk=def", first.Cookies)

	// Second call reuses the cached session
	second, err := sp.EnsureValidSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, auth.loginCalls)
}

func TestEnsureValidSession_ExpiredSessionRefreshes(t *testing.T) {
	config := newSessionConfig()
	config.Email = "agent@example.com"
	config.Password = "hunter2"

	auth := &fakeAuthenticator{cookies: "_session_id=abc"}
	sp := NewSessionProvider(config, auth, nil, common.GetLogger()).(*sessionProvider)

	_, err := sp.EnsureValidSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, auth.loginCalls)

	// Within the TTL no re-login happens
	sp.current.AcquiredAt = time.Now().Add(-29 * time.Minute)
	_, err = sp.EnsureValidSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, auth.loginCalls)

	// Past the TTL a fresh login is performed
	sp.current.AcquiredAt = time.Now().Add(-31 * time.Minute)
	_, err = sp.EnsureValidSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, auth.loginCalls)
}

func TestEnsureValidSession_MissingCredentials(t *testing.T) {
	config := newSessionConfig()

	sp := NewSessionProvider(config, &fakeAuthenticator{}, nil, common.GetLogger())

	_, err := sp.EnsureValidSession(context.Background())

	require.Error(t, err)
	var analyzerErr *common.AnalyzerError
	require.ErrorAs(t, err, &analyzerErr)
	assert.Equal(t, common.ErrorTypeConfiguration, analyzerErr.Type)
}

func TestLogin_FailurePropagates(t *testing.T) {
	config := newSessionConfig()
	config.Email = "agent@example.com"
	config.Password = "wrong"

	auth := &fakeAuthenticator{err: common.NewAuthError("login_rejected", "login form rejected the credentials")}
	sp := NewSessionProvider(config, auth, nil, common.GetLogger())

	_, err := sp.Login(context.Background())

	require.Error(t, err)
	var analyzerErr *common.AnalyzerError
	require.ErrorAs(t, err, &analyzerErr)
	assert.Equal(t, common.ErrorTypeAuth, analyzerErr.Type)
	assert.Nil(t, sp.Current())
}

func TestSetCookies(t *testing.T) {
	config := newSessionConfig()
	sp := NewSessionProvider(config, nil, nil, common.GetLogger())

	session, err := sp.SetCookies("_session_id=manual")

	require.NoError(t, err)
	assert.Equal(t, models.SessionKindCookie, session.Kind)
	assert.Equal(t, "_session_id=manual", session.Cookies)
	assert.Same(t, session, sp.Current())
}

func TestSetCookies_EmptyRejected(t *testing.T) {
	sp := NewSessionProvider(newSessionConfig(), nil, nil, common.GetLogger())

	_, err := sp.SetCookies("")

	require.Error(t, err)
	var analyzerErr *common.AnalyzerError
	require.ErrorAs(t, err, &analyzerErr)
	assert.Equal(t, common.ErrorTypeValidation, analyzerErr.Type)
}

func TestInvalidate(t *testing.T) {
	config := newSessionConfig()
	config.Email = "agent@example.com"
	config.Password = "hunter2"

	auth := &fakeAuthenticator{cookies: "_session_id=abc"}
	sp := NewSessionProvider(config, auth, nil, common.GetLogger())

	_, err := sp.EnsureValidSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sp.Current())

	sp.Invalidate()
	assert.Nil(t, sp.Current())

	// Next ensure performs a fresh login
	_, err = sp.EnsureValidSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, auth.loginCalls)
}
