package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insightline/internal/app"
	"insightline/internal/config"
	"insightline/internal/db"
	"insightline/internal/logging"
	"insightline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "il",
	Short: "Insightline CLI",
	Long: `Insightline moves generated insights through review before they are published.
- Insight: a finding with a title, summary and category. New insights start in DRAFT.
- Lifecycle: DRAFT -> NEEDS_REVIEW -> APPROVED or REJECTED; insights can also be archived,
  restored, marked failed, retried (at most 3 times) or deleted.
- Actions: submit_for_review, approve, reject, edit, archive, restore, mark_failed, retry, delete.
- Approval queues post generation for the configured platforms.
- Event log: every committed transition, view with 'il log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("INSIGHTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	_ = viper.BindPFlag("workspace", flags.Lookup("workspace"))
	_ = viper.BindPFlag("json", flags.Lookup("json"))
	_ = viper.BindPFlag("actor-id", flags.Lookup("actor-id"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

func registerCommands() {
	rootCmd.AddCommand(insightCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg := a.Config
				authCfg := server.AuthConfig{
					JWTSecret: viper.GetString("jwt-secret"),
					DevAuth:   cfg.Server.DevAuth,
					Logger:    a.Logger,
				}
				if authCfg.JWTSecret == "" && !authCfg.DevAuth {
					return fmt.Errorf("INSIGHTLINE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.ConfigFromApp(a, authCfg))
				if err != nil {
					return err
				}
				if a.Journal != nil {
					server.StartWebhooks(ctx, a.Journal, cfg.Webhooks, a.Logger)
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving insightline API",
					"addr", "http://"+cfg.Server.Addr+cfg.Server.BasePath,
					"openapi", cfg.Server.BasePath+"/openapi.json",
					"docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	cmd.Flags().Bool("dev-auth", false, "accept X-Actor-Id without credentials")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	_ = viper.BindPFlag("server.dev_auth", cmd.Flags().Lookup("dev-auth"))
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every committed transition is journaled with its previous and new state.",
	}
	log.AddCommand(logTailCmd())
	return log
}

// --- helpers ---

// loadConfig reads insightline.yml from the workspace and applies flag and
// environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("server.addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("server.base_path"); v != "" {
		cfg.Server.BasePath = v
	}
	if viper.GetBool("server.dev_auth") {
		cfg.Server.DevAuth = true
	}
	if v := viper.GetString("log.level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log.format"); v != "" {
		cfg.Log.Format = v
	}
	if v := viper.GetString("events.redis.addr"); v != "" {
		cfg.Events.Redis.Addr = v
	}
	if v := viper.GetString("notify.mode"); v != "" {
		cfg.Notify.Mode = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, cfg, app.Options{Workspace: viper.GetString("workspace"), Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
