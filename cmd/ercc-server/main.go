package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/config"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/alert"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/dashboard"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/blobstore"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/db"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/middleware"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/notification"
	"github.com/learnlegits-ceo/er-command-center-sub001/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ercc-server",
		Short: "ER Command Center triage API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS)
			migrator.SetLogger(newLogger(cfg.Env))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				switch {
				case s.Drifted:
					status = "CHANGED"
				case s.Applied:
					status = "applied"
				}
				if s.AppliedAt != nil {
					appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage hospitals",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a hospital schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume the notification queue and deliver staff notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer, err := newConsumer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			dispatcher := notification.NewDispatcher(notification.NewLogSender(logger), notification.NewTemplateEngine(), logger)

			logger.Info().Str("backend", cfg.JobsBackend).Msg("notification worker started")
			if err := consumer.Run(ctx, dispatcher.Handle); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info().Interface("delivered", dispatcher.Stats()).Msg("notification worker stopped")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed staff token for development and testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			tenant, _ := cmd.Flags().GetString("tenant")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			rawID, _ := cmd.Flags().GetString("id")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthJWTSecret == "" {
				return fmt.Errorf("AUTH_JWT_SECRET is required to sign tokens")
			}
			if auth.PrimaryRole([]string{role}) == "" {
				return fmt.Errorf("unknown role %q", role)
			}

			id := uuid.New()
			if rawID != "" {
				if id, err = uuid.Parse(rawID); err != nil {
					return fmt.Errorf("--id: %w", err)
				}
			}
			token, err := auth.IssueToken(auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthJWTSecret)},
				auth.Actor{ID: id, Name: name, Role: role}, tenant, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("name", "", "Staff member display name")
	cmd.Flags().String("role", auth.RoleNurse, "Role: admin, doctor, nurse, technician or receptionist")
	cmd.Flags().String("tenant", "default", "Hospital tenant id")
	cmd.Flags().String("id", "", "User id (random when empty)")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(db.NewPoolCollector(pool))
	httpMetrics := middleware.NewHTTPMetrics(reg)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger, httpMetrics))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(httpMetrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
	}))
	e.Use(middleware.BodyLimit("1M", "12M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": "0.1.0"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// Auth and tenant middleware apply to the API only.
	revoked := auth.NewRevocationStore(5 * time.Minute)
	defer revoked.Close()
	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthJWTSecret), Revoked: revoked}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
		logger.Warn().Msg("development auth enabled: requests without a token act as admin")
	}

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}

	apiV1 := e.Group("/api/v1",
		authMW,
		middleware.RateLimit(rateLimitCfg),
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.Audit(logger),
	)

	// Background jobs
	runner, closeRunner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up jobs backend")
	}
	defer closeRunner()

	// Monitor photo storage
	images, err := newImageStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up image store")
	}

	// Alerts
	alertSvc := alert.NewService(alert.NewRepoPG(pool), logger)
	alertSvc.SetJobs(runner)
	alert.NewHandler(alertSvc).RegisterRoutes(apiV1)

	// Triage
	adv := newAdvisor(cfg, logger, reg)
	triageSvc := triage.NewService(triage.NewRepos(pool), adv, logger)
	triageSvc.SetAlerter(alertSvc)
	triageSvc.SetJobs(runner)
	triageSvc.SetImageStore(images)
	triageSvc.SetMetrics(triage.NewMetrics(reg))
	triageSvc.SetAutoApply(cfg.TriageAutoApply)
	triageSvc.SetAdvisorTimeout(cfg.AdvisorTimeout)
	triage.NewHandler(triageSvc).RegisterRoutes(apiV1)

	// Dashboard
	dashboard.NewHandler(dashboard.NewService(dashboard.NewRepoPG(pool))).RegisterRoutes(apiV1)

	blobstore.NewHandler(images).RegisterRoutes(apiV1)
	auth.RegisterMe(apiV1)
	auth.RegisterLogout(apiV1, revoked)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("auto_apply", cfg.TriageAutoApply).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
