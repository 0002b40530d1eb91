package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/client"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/client/cache"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
)

type boardConfig struct {
	BaseURL      string        `mapstructure:"ERCC_BASE_URL"`
	SessionDB    string        `mapstructure:"ERCC_SESSION_DB"`
	PollInterval time.Duration `mapstructure:"ERCC_POLL_INTERVAL"`
	Debug        bool          `mapstructure:"ERCC_DEBUG"`
}

func loadConfig(cmd *cobra.Command) (*boardConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("ERCC_BASE_URL", "http://localhost:8000")
	v.SetDefault("ERCC_SESSION_DB", defaultSessionDB())
	v.SetDefault("ERCC_POLL_INTERVAL", "30s")
	v.SetDefault("ERCC_DEBUG", false)

	flags := map[string]string{
		"ERCC_BASE_URL":      "base-url",
		"ERCC_SESSION_DB":    "session-db",
		"ERCC_POLL_INTERVAL": "poll-interval",
		"ERCC_DEBUG":         "debug",
	}
	for key, flag := range flags {
		_ = v.BindEnv(key)
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	cfg := &boardConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("ERCC_POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	return cfg, nil
}

func defaultSessionDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ercc-session.db"
	}
	return dir + "/ercc/session.db"
}

// board bundles what every command needs.
type board struct {
	cfg     *boardConfig
	logger  zerolog.Logger
	nav     *client.ViewTracker
	api     *client.API
	session *client.Session
	store   *client.SQLiteStore
}

func openBoard(cmd *cobra.Command) (*board, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if err := os.MkdirAll(dirOf(cfg.SessionDB), 0o700); err != nil {
		return nil, fmt.Errorf("session dir: %w", err)
	}
	store, err := client.OpenSQLiteStore(cfg.SessionDB)
	if err != nil {
		return nil, err
	}

	nav := client.NewViewTracker("/board")
	api := client.NewAPI(cfg.BaseURL, logger, client.WithNavigator(nav))
	return &board{
		cfg:     cfg,
		logger:  logger,
		nav:     nav,
		api:     api,
		session: client.NewSession(api, store, logger),
		store:   store,
	}, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == os.PathSeparator {
			return path[:i]
		}
	}
	return "."
}

func (b *board) Close() {
	if err := b.store.Close(); err != nil {
		b.logger.Error().Err(err).Msg("close session db")
	}
}

// requireSession restores the saved session and fails unless it is usable.
func (b *board) requireSession(ctx context.Context) error {
	if err := b.session.Restore(ctx); err != nil {
		if errors.Is(err, client.ErrAuthExpired) {
			return fmt.Errorf("session expired; run ercc-board login")
		}
		return err
	}
	switch b.session.State() {
	case client.Unauthenticated:
		return fmt.Errorf("not signed in; run ercc-board login")
	case client.Validating:
		b.logger.Warn().Msg("server unreachable, using cached profile")
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "ercc-board",
		Short:        "ER Command Center dashboard client",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("base-url", "", "API server URL (ERCC_BASE_URL)")
	rootCmd.PersistentFlags().String("session-db", "", "Session database path (ERCC_SESSION_DB)")
	rootCmd.PersistentFlags().Duration("poll-interval", 0, "Refresh interval (ERCC_POLL_INTERVAL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Debug logging (ERCC_DEBUG)")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(shiftCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with credentials or a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBoard(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			token, _ := cmd.Flags().GetString("token")

			b.nav.Redirect(client.LoginView)
			ctx := cmd.Context()
			switch {
			case token != "":
				err = b.session.UseToken(ctx, token)
			case email != "":
				if password == "" {
					password = os.Getenv("ERCC_PASSWORD")
				}
				err = b.session.Login(ctx, email, password)
			default:
				return fmt.Errorf("--email or --token is required")
			}
			if err != nil {
				return fmt.Errorf("sign in failed: %w", err)
			}

			p := b.session.Profile()
			fmt.Printf("Signed in as %s (%s)\n", p.Name, p.Role)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Staff email")
	cmd.Flags().String("password", "", "Password (or ERCC_PASSWORD)")
	cmd.Flags().String("token", "", "Bearer token issued out of band")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBoard(cmd)
			if err != nil {
				return err
			}
			defer b.Close()
			ctx := cmd.Context()
			// Load the saved token so the server can revoke it.
			if err := b.session.Restore(ctx); err != nil && !errors.Is(err, client.ErrAuthExpired) {
				return err
			}
			if err := b.session.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func newSynchronizer(b *board) *cache.Synchronizer {
	sync := cache.New(b.api, b.logger, cache.Options{PollInterval: b.cfg.PollInterval})
	b.session.OnTeardown(sync.Clear)
	return sync
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the live patient board",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBoard(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := b.requireSession(ctx); err != nil {
				return err
			}

			sync := newSynchronizer(b)
			defer sync.Close()

			var focus *uuid.UUID
			if raw, _ := cmd.Flags().GetString("patient"); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("--patient: %w", err)
				}
				focus = &id
				sync.Watch(id)
			}

			redraw := make(chan struct{}, 1)
			sync.Subscribe(func(cache.Key) {
				select {
				case redraw <- struct{}{}:
				default:
				}
			})

			go func() {
				if err := sync.Run(ctx); err != nil {
					b.logger.Error().Err(err).Msg("poller stopped")
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-redraw:
					if b.nav.CurrentView() == client.LoginView {
						return fmt.Errorf("session ended; run ercc-board login")
					}
					render(os.Stdout, sync, b.session.Profile(), focus)
				}
			}
		},
	}
	cmd.Flags().String("patient", "", "Also follow this patient's triage timeline")
	return cmd
}

func shiftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shift <patient-id>",
		Short: "Shift a patient's triage priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("patient id: %w", err)
			}
			priority, _ := cmd.Flags().GetInt("priority")
			reasoning, _ := cmd.Flags().GetString("reasoning")
			override, _ := cmd.Flags().GetBool("override")
			key, _ := cmd.Flags().GetString("idempotency-key")

			b, err := openBoard(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			if err := b.requireSession(ctx); err != nil {
				return err
			}
			if !b.session.Permissions().CanShiftTriage {
				return fmt.Errorf("your role cannot shift triage")
			}

			in := triage.ShiftInput{Priority: priority, Reasoning: reasoning, IsOverride: override, IdempotencyKey: key}
			if cmd.Flags().Changed("expected-version") {
				v, _ := cmd.Flags().GetInt("expected-version")
				in.ExpectedVersion = &v
			}
			if in.IdempotencyKey == "" {
				in.IdempotencyKey = uuid.NewString()
			}

			sync := newSynchronizer(b)
			defer sync.Close()

			res, err := sync.ShiftTriage(ctx, id, in)
			if err != nil {
				return describeError(err)
			}
			fmt.Println(res.Message)
			sync.Wait()
			renderTimeline(os.Stdout, sync.Timeline(id), sync.Meta(cache.TimelineKey(id)))
			return nil
		},
	}
	cmd.Flags().Int("priority", 0, "New priority, 1 (critical) to 5 (stable)")
	cmd.Flags().String("reasoning", "", "Why the priority changes")
	cmd.Flags().Bool("override", false, "Mark as overriding an advisory recommendation")
	cmd.Flags().Int("expected-version", 0, "Fail if the patient changed since this version")
	cmd.Flags().String("idempotency-key", "", "Retry key (random when empty)")
	_ = cmd.MarkFlagRequired("priority")
	return cmd
}

func describeError(err error) error {
	switch {
	case errors.Is(err, client.ErrValidation):
		return fmt.Errorf("rejected: %w", err)
	case errors.Is(err, client.ErrConflict):
		return fmt.Errorf("the patient changed or was closed out; refresh and retry: %w", err)
	case errors.Is(err, client.ErrAuthExpired):
		return fmt.Errorf("session expired; run ercc-board login")
	case errors.Is(err, client.ErrForbidden):
		return fmt.Errorf("not allowed: %w", err)
	}
	return err
}
