package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hiredeck/gatehouse/internal/config"
	"github.com/hiredeck/gatehouse/internal/server"
	"github.com/hiredeck/gatehouse/internal/service"
	"github.com/hiredeck/gatehouse/internal/store"
	"github.com/hiredeck/gatehouse/internal/telemetry"
)

const banner = `
  ___   _ _____ ___ _  _  ___  _   _ ___ ___
 / __| /_\_   _| __| || |/ _ \| | | / __| __|
| (_ |/ _ \| | | _|| __ | (_) | |_| \__ \ _|
 \___/_/ \_\_| |___|_||_|\___/ \___/|___/___|
`

// settingsCacheTTL bounds how stale a runtime policy override can be.
const settingsCacheTTL = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Gatehouse server",
		Long:  "Start the HTTP server that authenticates, authorizes, and meters requests to the HireDeck API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, CORS *)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg.Logging, dev)

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info("store ready", "driver", st.Driver())

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		if dev {
			jwtSecret = "gatehouse-dev-secret-change-me"
			logger.Warn("using built-in dev JWT secret; set auth.jwt_secret for production")
		} else {
			return fmt.Errorf("auth.jwt_secret is required (set GATEHOUSE_AUTH_JWT_SECRET or edit gatehouse.yaml)")
		}
	}

	settings := config.NewCache(st, settingsCacheTTL)
	authSvc := service.NewAuthService(st, settings, jwtSecret, service.Defaults{
		MaxActiveKeys:    cfg.Keys.MaxActivePerPrincipal,
		DefaultRateLimit: cfg.Keys.DefaultRateLimit,
	}, logger)

	ctx := context.Background()
	principals, err := st.ListPrincipals(ctx)
	if err != nil {
		logger.Warn("list principals failed", "error", err)
	}
	if len(principals) == 0 {
		logger.Warn("no users exist yet; run: gatehouse user create")
	}

	srvCfg := server.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ShutdownTimeout:    parseDuration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:        cfg.Server.CORS.Origins,
		SessionTTL:         parseDuration(cfg.Auth.JWTExpiry, 24*time.Hour),
		LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
	}
	if dev {
		srvCfg.CORSOrigins = []string{"*"}
	}

	tracker := telemetry.New(ctx, st, func() telemetry.Properties {
		return gatherTelemetry(st, versionString())
	})
	if tracker != nil {
		telemetry.PrintNotice()
		tracker.Start()
		defer tracker.Shutdown()
	}

	srv := server.New(srvCfg, st, authSvc, logger)

	fmt.Printf("→ Gatehouse %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	fmt.Println()

	return srv.ListenAndServe()
}

func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func gatherTelemetry(st *store.Store, version string) telemetry.Properties {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	props := telemetry.Properties{
		Version:   version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Driver:    st.Driver(),
	}
	if principals, err := st.ListPrincipals(ctx); err == nil {
		props.Principals = len(principals)
	}
	if keys, err := st.ListActiveAPIKeys(ctx); err == nil {
		props.APIKeys = len(keys)
	}
	if roles, err := st.ListRoles(ctx); err == nil {
		props.Roles = len(roles)
	}
	return props
}
