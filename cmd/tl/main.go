package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"traceline/internal/app"
	"traceline/internal/config"
	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Traceline CLI",
	Long: `Traceline keeps systems-engineering artifacts traceable.
Core concepts:
- Workspace: the .traceline directory holding the sqlite database; traceline.yml and .env sit next to it.
- Project: owns areas, people, catalog items and every artifact.
- Artifacts: visions, needs, use cases, requirements and documents with ids like DEMO-SYS-REQ-001.
- Lifecycle: Draft -> Ready_for_Review -> In_Review -> Approved, with Deferred, Rejected, Superseded and Retired exits.
- Linkages: typed edges between artifacts, catalog items and external references.
- Event log: every change is recorded; view it with 'tl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFile(viper.GetString("workspace"))
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
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TRACELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (default <workspace>/traceline.yml)")
	flags.String("db-driver", "", "database driver: sqlite or postgres")
	flags.String("db-dsn", "", "database DSN")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor recorded on events")
	flags.String("project", "", "project id or name")
	flags.BoolP("verbose", "v", false, "log engine activity to stderr")
	for _, name := range []string{"workspace", "config", "db-driver", "db-dsn", "json", "actor-id", "project", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(areaCmd())
	rootCmd.AddCommand(artifactCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(earsCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(componentCmd())
	rootCmd.AddCommand(diagramCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace, traceline.yml and the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s exists; keeping it (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Println("database ready")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing traceline.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			c.Auth.JWTSecret = redact(c.Auth.JWTSecret)
			c.Auth.Admin.Password = redact(c.Auth.Admin.Password)
			c.Storage.MinIO.SecretKey = redact(c.Storage.MinIO.SecretKey)
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate traceline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var noAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stderr, "", log.LstdFlags)
			rt, err := openRuntime(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			cfg := rt.Config
			if v := viper.GetString("jwt-secret"); v != "" {
				cfg.Auth.JWTSecret = v
			}
			if v := viper.GetString("admin-password"); v != "" {
				cfg.Auth.Admin.Password = v
			}
			addr := firstNonEmpty(viper.GetString("addr"), cfg.Server.Addr, "127.0.0.1:8080")
			basePath := firstNonEmpty(viper.GetString("base-path"), cfg.Server.BasePath, "/v1")
			e := rt.Engine
			if !noAuth {
				if cfg.Auth.JWTSecret == "" {
					return fmt.Errorf("auth.jwt_secret or TRACELINE_JWT_SECRET is required for bearer auth")
				}
				created, err := e.Auth.EnsureAdmin(cmd.Context())
				if err != nil {
					return err
				}
				if created {
					logger.Printf("created admin user %q", cfg.Auth.Admin.Username)
				}
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{Disabled: noAuth, Logger: logger},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e, logger)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Printf("Serving Traceline API on http://%s%s (OpenAPI at %s/openapi.json, docs at /docs, metrics at /metrics)", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	cmd.Flags().String("base-path", "", "API base path (default from config)")
	cmd.Flags().String("jwt-secret", "", "JWT signing secret")
	cmd.Flags().String("admin-password", "", "password of the bootstrap admin user")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "disable authentication (local use only)")
	for _, name := range []string{"addr", "base-path", "jwt-secret", "admin-password"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

// --- helpers ---

func runtimeOptions(logger *log.Logger) app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Driver:     viper.GetString("db-driver"),
		DSN:        viper.GetString("db-dsn"),
		Logger:     logger,
	}
}

func openRuntime(ctx context.Context, logger *log.Logger) (*app.Runtime, error) {
	return app.Open(ctx, runtimeOptions(logger))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	logger := log.New(io.Discard, "", 0)
	if viper.GetBool("verbose") {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	rt, err := openRuntime(ctx, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

// withProject resolves --project before running fn.
func withProject(ctx context.Context, fn func(context.Context, engine.Engine, domain.Project) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		p, err := app.ResolveProject(ctx, e, viper.GetString("project"))
		if err != nil {
			return err
		}
		return fn(ctx, e, p)
	})
}

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	return config.Load(viper.GetString("workspace"))
}

func actorID() string {
	return firstNonEmpty(strings.TrimSpace(viper.GetString("actor-id")), "local-user")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRows renders a table, or v as JSON with --json.
func printRows(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

// printObject renders one record as a two column table.
func printObject(v any, pairs ...any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	rows := make([]table.Row, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		rows = append(rows, table.Row{pairs[i], pairs[i+1]})
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// parsePairs turns repeated key=value flags into a map.
func parsePairs(flag string, values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--%s expects key=value, got %q", flag, v)
		}
		out[strings.TrimSpace(k)] = val
	}
	return out, nil
}

// parseRelations turns repeated field=id1,id2 flags into join lists.
func parseRelations(values []string) (map[string][]string, error) {
	pairs, err := parsePairs("relation", values)
	if err != nil || len(pairs) == 0 {
		return nil, err
	}
	out := make(map[string][]string, len(pairs))
	for k, v := range pairs {
		ids := []string{}
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		out[k] = ids
	}
	return out, nil
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
