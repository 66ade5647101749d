package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/interfaces"

	cdpstorage "github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// Prioritized selector lists for the login form. The first selector that
// matches a visible element wins.
var (
	emailSelectors = []string{
		`input[type="email"]`,
		`input[name="user[email]"]`,
		`#user_email`,
		`input[name="email"]`,
		`input[name="username"]`,
	}
	passwordSelectors = []string{
		`input[type="password"]`,
		`input[name="user[password]"]`,
		`#user_password`,
		`input[name="password"]`,
	}
	submitSelectors = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button[name="commit"]`,
	}
)

type loginScraper struct {
	config  *common.HelpdeskConfig
	logger  arbor.ILogger
	timeout time.Duration
}

// NewLoginScraper creates a browser-driven authenticator for the helpdesk
// login page. With remote_debug_port set it attaches to an already running
// Chrome; otherwise it launches a headless instance per login.
func NewLoginScraper(config *common.HelpdeskConfig, logger arbor.ILogger) interfaces.BrowserAuthenticator {
	return &loginScraper{
		config:  config,
		logger:  logger,
		timeout: time.Duration(config.TimeoutSeconds) * time.Second,
	}
}

// Login drives the interactive login flow and returns the full cookie set
// concatenated into a single header value. Success is decided solely by
// the resulting URL: still on "/login" means failure.
func (ls *loginScraper) Login(ctx context.Context) (string, error) {
	browserCtx, cancel := ls.newBrowserContext(ctx)
	defer cancel()

	runCtx, runCancel := context.WithTimeout(browserCtx, ls.timeout)
	defer runCancel()

	loginURL := ls.config.BaseURL() + "/login"

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitReady("body"),
	); err != nil {
		return "", common.WrapError(err, common.ErrorTypeAuth, "login_navigation",
			"failed to open helpdesk login page")
	}

	emailSel, err := ls.findSelector(runCtx, emailSelectors)
	if err != nil {
		return "", common.NewAuthError("email_input_not_found",
			"could not locate the email input on the login page").WithCause(err)
	}
	passwordSel, err := ls.findSelector(runCtx, passwordSelectors)
	if err != nil {
		return "", common.NewAuthError("password_input_not_found",
			"could not locate the password input on the login page").WithCause(err)
	}
	submitSel, err := ls.findSelector(runCtx, submitSelectors)
	if err != nil {
		return "", common.NewAuthError("submit_button_not_found",
			"could not locate the submit button on the login page").WithCause(err)
	}

	settle := time.Duration(ls.config.LoginWaitMillis) * time.Millisecond

	var currentURL string
	if err := chromedp.Run(runCtx,
		chromedp.SendKeys(emailSel, ls.config.Email, chromedp.ByQuery),
		chromedp.SendKeys(passwordSel, ls.config.Password, chromedp.ByQuery),
		chromedp.Click(submitSel, chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Location(&currentURL),
	); err != nil {
		return "", common.WrapError(err, common.ErrorTypeAuth, "login_submit",
			"login form submission failed")
	}

	if strings.Contains(currentURL, "/login") {
		reason := ls.extractFailureReason(runCtx)
		if reason == "" {
			reason = "login page did not accept the credentials"
		}
		ls.logger.Warn().Str("url", currentURL).Str("reason", reason).Msg("Helpdesk login rejected")
		return "", common.NewAuthError("login_rejected", "helpdesk login failed").WithDetails(reason)
	}

	cookies, err := ls.collectCookies(runCtx)
	if err != nil {
		return "", common.WrapError(err, common.ErrorTypeAuth, "cookie_extraction",
			"failed to extract session cookies after login")
	}
	if cookies == "" {
		return "", common.NewAuthError("no_cookies", "login succeeded but produced no cookies")
	}

	ls.logger.Info().Str("url", currentURL).Msg("Helpdesk login navigation settled")
	return cookies, nil
}

func (ls *loginScraper) newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ls.config.RemoteDebugPort > 0 {
		// Attach to an existing browser started with --remote-debugging-port
		debugURL := fmt.Sprintf("http://localhost:%d", ls.config.RemoteDebugPort)
		allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, debugURL)
		browserCtx, cancel := chromedp.NewContext(allocCtx)
		return browserCtx, func() {
			cancel()
			allocCancel()
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		cancel()
		allocCancel()
	}
}

// findSelector probes the page once and returns the first selector from
// the prioritized list that matches an element.
func (ls *loginScraper) findSelector(ctx context.Context, selectors []string) (string, error) {
	selectorsJSON, err := json.Marshal(selectors)
	if err != nil {
		return "", err
	}

	var matched string
	script := fmt.Sprintf(`(function() {
		const selectors = %s;
		for (const sel of selectors) {
			if (document.querySelector(sel)) return sel;
		}
		return "";
	})()`, selectorsJSON)

	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &matched)); err != nil {
		return "", err
	}
	if matched == "" {
		return "", fmt.Errorf("no selector matched: %s", strings.Join(selectors, ", "))
	}
	return matched, nil
}

// extractFailureReason pulls a visible error message from the login page,
// best effort.
func (ls *loginScraper) extractFailureReason(ctx context.Context) string {
	var pageHTML string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery)); err != nil {
		return ""
	}
	return common.ExtractLoginError(pageHTML)
}

// collectCookies concatenates the browser cookie set into a single
// "name=value; name=value" header value.
func (ls *loginScraper) collectCookies(ctx context.Context) (string, error) {
	var header string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := cdpstorage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		pairs := make([]string, 0, len(cookies))
		for _, cookie := range cookies {
			pairs = append(pairs, fmt.Sprintf("%s=%s", cookie.Name, cookie.Value))
		}
		header = strings.Join(pairs, "; ")
		return nil
	}))
	return header, err
}
