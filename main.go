package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/rs/zerolog"
	"github.com/subosito/gotenv"
	"golang.org/x/time/rate"

	"github.com/luxfi/faucet/pkg/config"
	"github.com/luxfi/faucet/pkg/ratelimit"
)

//go:embed templates/*.html
var templatesFS embed.FS

type Templates struct {
	templates *template.Template
}

func (t *Templates) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

func newTemplate() *Templates {
	return &Templates{
		templates: template.Must(template.ParseFS(templatesFS, "templates/*.html")),
	}
}

type PageChain struct {
	ID         string
	Name       string
	Token      string
	DripAmount float64
}

type Page struct {
	Title        string
	Chains       []PageChain
	DefaultChain string
	Address      string
	Networks     map[string]AddEthereumChainParameter
	MaxDrip      float64
}

func newPage(registry config.Registry, cfg config.Config) Page {
	p := Page{
		Title:        "Lux Testnet Faucet",
		DefaultChain: registry.Chains[0].ID,
		Networks:     make(map[string]AddEthereumChainParameter, len(registry.Chains)),
		MaxDrip:      cfg.MaxDripAmount,
	}

	for _, c := range registry.Chains {
		p.Chains = append(p.Chains, PageChain{
			ID:         c.ID,
			Name:       c.Name,
			Token:      c.Token,
			DripAmount: c.DripAmount,
		})
		p.Networks[c.ID] = addNetworkParams(c)
	}

	return p
}

// RateLimitMiddleware creates a per-IP rate limiting middleware.
func RateLimitMiddleware(rps int, burst int) echo.MiddlewareFunc {
	var mu sync.Mutex
	clients := make(map[string]*rate.Limiter)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			mu.Lock()
			if _, exists := clients[ip]; !exists {
				clients[ip] = rate.NewLimiter(rate.Limit(rps), burst)
			}
			clientLimiter := clients[ip]
			mu.Unlock()

			if !clientLimiter.Allow() {
				return c.JSON(http.StatusTooManyRequests, messageResponse{
					Message: "Rate limit exceeded. Please try again later.",
				})
			}

			return next(c)
		}
	}
}

// setupLogger creates and configures the logger.
func setupLogger() log.Logger {
	logLevel, err := log.ParseLevel(config.GetLogLevel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing log level: %s", err)
		logLevel = log.InfoLevel
	}

	return log.New(
		log.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
	).Level(logLevel).With().Timestamp().Logger()
}

// setupMiddleware configures all Echo middleware.
func setupMiddleware(e *echo.Echo, cfg config.Config, logger log.Logger) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	if logger.GetLevel() == log.DebugLevel {
		e.Use(middleware.Logger())
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: cfg.RequestTimeout,
	}))
}

// setupRoutes configures all application routes.
func setupRoutes(e *echo.Echo, d *deps) {
	health := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", health)
	e.GET("/healthz", health)
	e.GET("/", homeHandler(d))

	api := e.Group("/api", RateLimitMiddleware(d.cfg.IPRPS, d.cfg.IPBurst))
	api.GET("/getChainConfigs", getChainConfigsHandler(d))
	api.GET("/faucetAddress", faucetAddressHandler(d))
	api.GET("/getBalance", getBalanceHandler(d))
	api.GET("/addNetwork", addNetworkHandler(d))
	api.POST("/sendToken", sendTokenHandler(d))
}

func newServer(d *deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Renderer = newTemplate()

	setupMiddleware(e, d.cfg, d.log)
	setupRoutes(e, d)

	return e
}

// validateProductionConfig warns about chain settings that are unusual for a
// public faucet.
func validateProductionConfig(registry config.Registry, logger log.Logger) {
	warnings := []string{}

	for _, c := range registry.Chains {
		if c.RateLimit.Window() < time.Hour {
			warnings = append(warnings,
				fmt.Sprintf("chain %s: rate limit window (%v) is very short", c.ID, c.RateLimit.Window()))
		}

		if c.DailyLimit > 100000 {
			warnings = append(warnings,
				fmt.Sprintf("chain %s: DAILY_LIMIT (%.0f) is very high, ensure sufficient funds", c.ID, c.DailyLimit))
		}
	}

	for _, warning := range warnings {
		logger.Warn().Msg(warning)
	}
}

func newLimiter(cfg config.Config) (ratelimit.Store, error) {
	if cfg.RateLimitDB == "" {
		return ratelimit.NewMemoryStore(), nil
	}

	return ratelimit.NewSQLiteStore(cfg.RateLimitDB)
}

func maxWindow(registry config.Registry) time.Duration {
	var w time.Duration
	for _, c := range registry.Chains {
		w = max(w, c.RateLimit.Window())
	}

	return w
}

func main() {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env: %s\n", err)
	}

	logger := setupLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal().Msgf("error loading config: %s", err)
	}

	registry, err := config.LoadChains(cfg.ChainsFile, cfg.MaxDripAmount)
	if err != nil {
		logger.Fatal().Msgf("error loading chains: %s", err)
	}
	validateProductionConfig(registry, logger)

	blocked, err := parseBlacklist(cfg.BlacklistEntries())
	if err != nil {
		logger.Fatal().Msgf("error loading config: %s", err)
	}

	privateKey, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		logger.Fatal().Msgf("failed to parse private key: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	faucets := make(map[string]*Faucet, len(registry.Chains))
	drippers := make(map[string]Dripper, len(registry.Chains))
	for _, chain := range registry.Chains {
		client, err := ethclient.DialContext(ctx, chain.RPC)
		if err != nil {
			logger.Fatal().Msgf("failed to connect to %s: %s", chain.RPC, err)
		}
		defer client.Close()

		f := NewFaucet(chain, registry.TokensOf(chain.ID), client, privateKey,
			defaultFaucetOptions(cfg.ReceiptTimeout), logger)

		verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := f.VerifyChainID(verifyCtx); err != nil {
			logger.Warn().Msgf("chain %s: %s", chain.ID, err)
		}
		cancel()

		faucets[chain.ID] = f
		drippers[chain.ID] = f
	}

	limiter, err := newLimiter(cfg)
	if err != nil {
		logger.Fatal().Msgf("error opening rate limit store: %s", err)
	}
	defer limiter.Close()

	refresher, err := startRefresh(cfg.RefreshSchedule, faucets, limiter, maxWindow(registry), logger)
	if err != nil {
		logger.Fatal().Msgf("error scheduling refresh: %s", err)
	}
	defer refresher.Stop()

	d := &deps{
		cfg:       cfg,
		registry:  registry,
		faucets:   drippers,
		limiter:   limiter,
		blacklist: blocked,
		log:       logger,
		now:       time.Now,
	}
	e := newServer(d)

	logger.Info().Msgf("faucet address: %s", crypto.PubkeyToAddress(privateKey.PublicKey).Hex())

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Msgf("server error: %s", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Msgf("error shutting down: %s", err)
	}
}
