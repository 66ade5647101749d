package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/models"
	"aktis-analyzer-freshservice/internal/services"
)

const reportName = "aktis-analyzer-report"

// One-shot report generator: fetches recent tickets, analyzes them (via the
// oracle when enabled, locally otherwise) and writes the result as JSON.
func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		minutes    = flag.Int("minutes", 0, "Time window in minutes (0 = configured default)")
		output     = flag.String("output", "", "Output file path (default: stdout)")
		local      = flag.Bool("local", false, "Skip the oracle and analyze locally")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s (build: %s)\n", reportName, common.GetVersion(), common.GetBuild())
		os.Exit(0)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Reports log to console only; file logging belongs to the server
	loggingConfig := cfg.Logging
	loggingConfig.Output = "console"
	if err := common.InitLogger(&loggingConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := common.GetLogger()

	windowMinutes := cfg.Analyzer.DefaultWindowMinutes
	if *minutes > 0 {
		windowMinutes = *minutes
	}

	storage, err := services.NewStorage(&cfg.Storage)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer storage.Close()

	var authenticator interfaces.BrowserAuthenticator
	if cfg.Helpdesk.AuthMode() == "cookie" {
		authenticator = services.NewLoginScraper(&cfg.Helpdesk, logger)
	}

	sessions := services.NewSessionProvider(&cfg.Helpdesk, authenticator, storage, logger)
	fetcher := services.NewTicketFetcher(&cfg.Helpdesk, sessions, logger)

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Helpdesk.TimeoutSeconds+cfg.Oracle.TimeoutSeconds+cfg.Oracle.ChallengeTimeoutSeconds)*time.Second)
	defer cancel()

	filter := interfaces.TicketFilter{
		WindowMinutes: windowMinutes,
		GroupID:       cfg.Helpdesk.GroupID,
		WorkspaceID:   cfg.Helpdesk.WorkspaceID,
	}

	logger.Info().Int("window_minutes", windowMinutes).Msg("Fetching tickets")

	tickets, err := fetcher.FetchTickets(ctx, filter)
	if err != nil {
		logger.Error().Err(err).Msg("Ticket fetch failed")
		os.Exit(1)
	}

	logger.Info().Int("count", len(tickets)).Msg("Tickets fetched")

	result := analyze(ctx, cfg, storage, tickets, *local)

	if err := writeResult(result, *output); err != nil {
		logger.Error().Err(err).Msg("Failed to write report")
		os.Exit(1)
	}

	if *output != "" {
		logger.Info().Str("output", *output).Msg("Report written")
	}
}

// analyze runs the oracle when configured, falling back to the local
// analyzer on any oracle failure.
func analyze(ctx context.Context, cfg *common.Config, storage interfaces.Storage, tickets []models.RawTicket, forceLocal bool) *models.AnalysisResult {
	logger := common.GetLogger()
	localAnalyzer := services.NewAnalyzer(cfg.Analyzer.SubjectMaxLength)

	if forceLocal || !cfg.Oracle.Enabled {
		return localAnalyzer.Analyze(tickets)
	}

	oracle := services.NewOracleAnalyzer(&cfg.Oracle, storage, logger)
	result, err := oracle.Analyze(ctx, tickets)
	if err != nil {
		logger.Warn().Err(err).Msg("Oracle analysis failed, falling back to local analyzer")
		return localAnalyzer.Analyze(tickets)
	}
	return result
}

func writeResult(result *models.AnalysisResult, outputPath string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	if outputPath == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(outputPath, append(data, '\n'), 0644)
}
