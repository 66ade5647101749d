package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/models"

	"github.com/chromedp/cdproto/network"
	cdpstorage "github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
)

// Storage key for persisted oracle browser cookies.
const oracleCookiesKey = "oracle"

// Page-text markers for a human-verification challenge sitting in front
// of the oracle.
var challengeMarkers = []string{
	"verify you are human",
	"checking your browser",
	"just a moment",
	"security check",
	"captcha",
}

var (
	promptSelectors = []string{
		`#prompt-textarea`,
		`textarea`,
		`div[contenteditable="true"]`,
	}
	replySelectors = []string{
		`[data-message-author-role="assistant"]`,
		`.markdown`,
		`.model-response`,
	}
)

type oracleAnalyzer struct {
	config  *common.OracleConfig
	storage interfaces.Storage
	logger  arbor.ILogger
	timeout time.Duration
}

// NewOracleAnalyzer creates the browser-driven external analyzer. It is
// only used by the report command; every failure path returns an error so
// the caller can fall back to the local analyzer.
func NewOracleAnalyzer(config *common.OracleConfig, storage interfaces.Storage, logger arbor.ILogger) interfaces.OracleAnalyzer {
	return &oracleAnalyzer{
		config:  config,
		storage: storage,
		logger:  logger,
		timeout: time.Duration(config.TimeoutSeconds) * time.Second,
	}
}

func (oa *oracleAnalyzer) Analyze(ctx context.Context, tickets []models.RawTicket) (*models.AnalysisResult, error) {
	if oa.config.BaseURL == "" {
		return nil, common.NewConfigurationError("missing_oracle_url", "no oracle base_url configured")
	}

	prompt, err := BuildOraclePrompt(tickets)
	if err != nil {
		return nil, common.WrapError(err, common.ErrorTypeOracle, "prompt_build",
			"failed to serialize tickets for the oracle")
	}

	browserCtx, cancel := oa.newBrowserContext(ctx)
	defer cancel()

	runCtx, runCancel := context.WithTimeout(browserCtx, oa.timeout+oa.challengeTimeout())
	defer runCancel()

	if err := oa.openOracle(runCtx); err != nil {
		return nil, err
	}

	if err := oa.waitForChallenge(runCtx); err != nil {
		return nil, err
	}

	// Persist cookies so future runs skip the cleared challenge
	oa.persistCookies(runCtx)

	reply, err := oa.submitPrompt(runCtx, prompt)
	if err != nil {
		return nil, err
	}

	result, err := ParseOracleReply(reply)
	if err != nil {
		return nil, err
	}

	oa.logger.Info().Int("total_tickets", result.TotalTickets).Msg("Oracle analysis parsed")
	return result, nil
}

func (oa *oracleAnalyzer) challengeTimeout() time.Duration {
	if oa.config.ChallengeTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(oa.config.ChallengeTimeoutSeconds) * time.Second
}

func (oa *oracleAnalyzer) newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if oa.config.RemoteDebugPort > 0 {
		debugURL := fmt.Sprintf("http://localhost:%d", oa.config.RemoteDebugPort)
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

// openOracle restores any persisted cookies and navigates to the chat page.
func (oa *oracleAnalyzer) openOracle(ctx context.Context) error {
	actions := []chromedp.Action{}

	if oa.storage != nil {
		if cookies, err := oa.storage.LoadBrowserCookies(oracleCookiesKey); err == nil && len(cookies) > 0 {
			params := make([]*network.CookieParam, 0, len(cookies))
			for _, cookie := range cookies {
				params = append(params, &network.CookieParam{
					Name:   cookie.Name,
					Value:  cookie.Value,
					Domain: cookie.Domain,
					Path:   cookie.Path,
				})
			}
			actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
				return cdpstorage.SetCookies(params).Do(ctx)
			}))
			oa.logger.Debug().Int("count", len(cookies)).Msg("Restored oracle cookies")
		}
	}

	actions = append(actions,
		chromedp.Navigate(oa.config.BaseURL),
		chromedp.WaitReady("body"),
	)

	if err := chromedp.Run(ctx, actions...); err != nil {
		return common.WrapError(err, common.ErrorTypeOracle, "oracle_navigation",
			"failed to open the oracle page")
	}
	return nil
}

// waitForChallenge blocks until any human-verification challenge clears,
// assuming an operator resolves it out-of-band, bounded by the configured
// challenge timeout.
func (oa *oracleAnalyzer) waitForChallenge(ctx context.Context) error {
	deadline := time.Now().Add(oa.challengeTimeout())

	for {
		blocked, err := oa.challengePresent(ctx)
		if err != nil {
			return common.WrapError(err, common.ErrorTypeOracle, "challenge_check",
				"failed to inspect the oracle page")
		}
		if !blocked {
			return nil
		}

		if time.Now().After(deadline) {
			return common.NewOracleError("challenge_timeout",
				"verification challenge did not clear in time")
		}

		oa.logger.Info().Msg("Verification challenge detected, waiting for operator")

		select {
		case <-ctx.Done():
			return common.WrapError(ctx.Err(), common.ErrorTypeOracle, "challenge_wait",
				"cancelled while waiting for the challenge to clear")
		case <-time.After(2 * time.Second):
		}
	}
}

func (oa *oracleAnalyzer) challengePresent(ctx context.Context) (bool, error) {
	var pageText string
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &pageText))
	if err != nil {
		return false, err
	}

	lowered := strings.ToLower(pageText)
	for _, marker := range challengeMarkers {
		if strings.Contains(lowered, marker) {
			return true, nil
		}
	}
	return false, nil
}

func (oa *oracleAnalyzer) persistCookies(ctx context.Context) {
	if oa.storage == nil {
		return
	}

	var cookies []models.BrowserCookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		browserCookies, err := cdpstorage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, cookie := range browserCookies {
			cookies = append(cookies, models.BrowserCookie{
				Name:   cookie.Name,
				Value:  cookie.Value,
				Domain: cookie.Domain,
				Path:   cookie.Path,
			})
		}
		return nil
	}))
	if err != nil {
		oa.logger.Warn().Err(err).Msg("Failed to read oracle cookies")
		return
	}

	if err := oa.storage.SaveBrowserCookies(oracleCookiesKey, cookies); err != nil {
		oa.logger.Warn().Err(err).Msg("Failed to persist oracle cookies")
	}
}

// submitPrompt types the prompt into the chat input, submits it and waits
// for the reply text to settle.
func (oa *oracleAnalyzer) submitPrompt(ctx context.Context, prompt string) (string, error) {
	inputSel, err := oa.findSelector(ctx, promptSelectors)
	if err != nil {
		return "", common.NewOracleError("prompt_input_not_found",
			"could not locate the oracle prompt input").WithCause(err)
	}

	if err := chromedp.Run(ctx,
		chromedp.SendKeys(inputSel, prompt, chromedp.ByQuery),
		chromedp.SendKeys(inputSel, kb.Enter, chromedp.ByQuery),
	); err != nil {
		return "", common.WrapError(err, common.ErrorTypeOracle, "prompt_submit",
			"failed to submit the prompt")
	}

	return oa.waitForReply(ctx)
}

// waitForReply polls the reply container until its text is non-empty and
// unchanged between two polls, bounded by the oracle timeout.
func (oa *oracleAnalyzer) waitForReply(ctx context.Context) (string, error) {
	deadline := time.Now().Add(oa.timeout)
	previous := ""

	for {
		if time.Now().After(deadline) {
			return "", common.NewOracleError("reply_timeout", "oracle reply did not arrive in time")
		}

		select {
		case <-ctx.Done():
			return "", common.WrapError(ctx.Err(), common.ErrorTypeOracle, "reply_wait",
				"cancelled while waiting for the oracle reply")
		case <-time.After(2 * time.Second):
		}

		current, err := oa.replyText(ctx)
		if err != nil {
			return "", common.WrapError(err, common.ErrorTypeOracle, "reply_read",
				"failed to read the oracle reply")
		}

		if current != "" && current == previous {
			return current, nil
		}
		previous = current
	}
}

func (oa *oracleAnalyzer) replyText(ctx context.Context) (string, error) {
	selectorsJSON, err := json.Marshal(replySelectors)
	if err != nil {
		return "", err
	}

	var text string
	script := fmt.Sprintf(`(function() {
		const selectors = %s;
		for (const sel of selectors) {
			const nodes = document.querySelectorAll(sel);
			if (nodes.length > 0) return nodes[nodes.length - 1].innerText;
		}
		return "";
	})()`, selectorsJSON)

	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &text)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (oa *oracleAnalyzer) findSelector(ctx context.Context, selectors []string) (string, error) {
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

// BuildOraclePrompt serializes the ticket list plus the analysis
// instruction into a single prompt.
func BuildOraclePrompt(tickets []models.RawTicket) (string, error) {
	payload, err := json.Marshal(tickets)
	if err != nil {
		return "", err
	}

	var prompt strings.Builder
	prompt.WriteString("Analyze the following helpdesk tickets and reply with ONLY a JSON object, no prose.\n")
	prompt.WriteString("Schema: {\"analysis_timestamp\": ISO-8601 instant, \"total_tickets\": int, ")
	prompt.WriteString("\"summary\": {\"fresh_tickets\", \"replied_tickets\", \"p1_count\", \"p2_count\", \"p3_count\", \"p4_count\"}, ")
	prompt.WriteString("\"tickets\": [{\"ticket_id\", \"subject\", \"priority\", \"requester_name\", \"requester_location\", ")
	prompt.WriteString("\"status\", \"attendance_status\", \"response_time_minutes\", \"created_at\", \"updated_at\"}]}.\n")
	prompt.WriteString("Rules: priority maps numeric 1,2,3,4 to P4,P3,P2,P1 and anything else to P4. ")
	prompt.WriteString("attendance_status is FRESH when stats.agent_responded_at is null and stats.outbound_count <= 1, otherwise REPLIED. ")
	prompt.WriteString("response_time_minutes is stats.first_resp_time_in_secs divided by 60 rounded half-up, or null when absent. ")
	prompt.WriteString("Keep tickets in input order.\n\nTickets:\n")
	prompt.Write(payload)

	return prompt.String(), nil
}

// ParseOracleReply extracts the JSON object from the oracle's textual
// reply, tolerating markdown code fences, and validates the result.
func ParseOracleReply(reply string) (*models.AnalysisResult, error) {
	cleaned := stripCodeFences(reply)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, common.NewOracleError("unparseable_reply", "oracle reply contains no JSON object")
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &result); err != nil {
		return nil, common.WrapError(err, common.ErrorTypeOracle, "unparseable_reply",
			"oracle reply is not valid JSON")
	}

	if result.TotalTickets == 0 {
		return nil, common.NewOracleError("empty_result", "oracle reply carries no tickets")
	}

	return &result, nil
}

func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop a language tag like "json" on the opening fence
	if newline := strings.Index(trimmed, "\n"); newline >= 0 {
		firstLine := strings.TrimSpace(trimmed[:newline])
		if len(firstLine) <= 10 && !strings.Contains(firstLine, "{") {
			trimmed = trimmed[newline+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
