package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/chartsboard/chartsboard/internal/auth"
	"github.com/chartsboard/chartsboard/internal/blockchain"
	"github.com/chartsboard/chartsboard/internal/botfront"
	"github.com/chartsboard/chartsboard/internal/config"
	"github.com/chartsboard/chartsboard/internal/core"
	"github.com/chartsboard/chartsboard/internal/http_api"
	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/internal/rate"
	"github.com/chartsboard/chartsboard/internal/repository"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "chartsboard",
		Usage: "Chartsboard is a donation leaderboard backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "API port"},
			&cli.StringFlag{Name: "bot-token", Aliases: []string{"b"}, Usage: "Bot token"},
			&cli.StringFlag{Name: "ton-wallet-address", Aliases: []string{"w"}, Usage: "Receiving TON wallet address"},
			&cli.StringFlag{Name: "rate-provider-url", Aliases: []string{"r"}, Usage: "Conversion rate provider URL"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("bot-token") {
		cfg.BotToken = c.String("bot-token")
	}
	if c.IsSet("ton-wallet-address") {
		cfg.TonWalletAddress = c.String("ton-wallet-address")
	}
	if c.IsSet("rate-provider-url") {
		cfg.RateProviderURL = c.String("rate-provider-url")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize rate provider
	rates := rate.NewProvider(rate.Options{
		URL:          cfg.RateProviderURL,
		TTL:          cfg.RateCacheTTL,
		FetchTimeout: cfg.RateFetchTimeout,
		Default:      cfg.DefaultChartsPerStar,
		Rounding:     cfg.ChartsRounding,
	}, log.Named("rate"))

	// Initialize bot front end; optional, the API works without it but
	// invoice creation is unavailable.
	var invoices models.InvoiceLinker
	var front *botfront.Bot
	if cfg.BotToken != "" {
		front, err = botfront.NewBot(nil, cfg, log.Named("bot"))
		if err != nil {
			return fmt.Errorf("failed to initialize bot: %v", err)
		}
		invoices = front
	} else {
		log.Warn("BOT_TOKEN not set, invoice creation disabled")
	}

	// Create the core service
	service, err := core.NewService(db, rates, invoices, cfg, log.Named("core"))
	if err != nil {
		return fmt.Errorf("failed to initialize core: %v", err)
	}
	if front != nil {
		front.SetCore(service)
		go front.Start(ctx)
	}

	// Initialize chain indexer and scanner
	indexer := blockchain.NewToncenter(cfg.TonAPIURL, cfg.TonAPIKey, log.Named("toncenter"))
	scanner := core.NewScanner(db, indexer, cfg, log.Named("scanner"))
	if err := scanner.Start(); err != nil {
		return fmt.Errorf("failed to start scanner: %v", err)
	}

	// Initialize API server
	verifier := auth.NewVerifier(cfg.BotToken)
	apiServer := http_api.NewHTTPServer(service, verifier, cfg.APIPort, log.Named("http"))
	go apiServer.Start()

	<-ctx.Done()

	scanner.Stop()
	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server ", "error ", err)
	}
	if err := db.Close(); err != nil {
		log.Error("Failed to close database ", "error ", err)
	}
	return nil
}
