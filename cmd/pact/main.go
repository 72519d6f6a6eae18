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
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pactline/internal/app"
	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/engine/auth"
	"pactline/internal/logging"
	"pactline/internal/repo"
	"pactline/internal/server"
	"pactline/internal/taskboard"
)

var rootCmd = &cobra.Command{
	Use:   "pact",
	Short: "Pactline CLI",
	Long: `Pactline is a client for a contract lifecycle backend.
Core concepts:
- Contract: an agreement moving through Draft, Needs Revision, Awaiting Signatures, Signed, Expiring Soon and Expired.
- Version: an uploaded PDF of the contract; the highest version number is the latest.
- AI tasks: clause extraction, risk assessment, embedding and diff run per version; completed results can be shown.
- Chat: questions about the latest version; a new version starts a new conversation.
- Roles: Contract Manager (CM), Authorised Signatory (AS) and Contract Observer (CO). Only managers upload new versions.
- Event log: what this client did, view with 'pact log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return setupLogging(workspace)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCleanup != nil {
			return logCleanup()
		}
		return nil
	},
}

var logCleanup func() error

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PACTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the backend (env PACTLINE_TOKEN)")
	rootCmd.PersistentFlags().String("base-url", "", "backend base URL (overrides backend.base_url)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides log.level)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(analysisCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func options() app.Options {
	return app.Options{
		Workspace: viper.GetString("workspace"),
		BaseURL:   viper.GetString("base-url"),
		Token:     viper.GetString("token"),
	}
}

// setupLogging configures slog from the workspace config. A broken config falls back
// to defaults here; the command itself reports it.
func setupLogging(workspace string) error {
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		cfg = config.Default()
	}
	lc := logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	if lvl := viper.GetString("log-level"); lvl != "" {
		lc.Level = lvl
	}
	if lc.File != "" && !filepath.IsAbs(lc.File) {
		lc.File = filepath.Join(workspace, lc.File)
	}
	_, cleanup, err := logging.Setup(lc)
	if err != nil {
		return err
	}
	logCleanup = cleanup
	return nil
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "contract",
		Short: "Browse contracts and upload versions",
	}
	c.AddCommand(contractListCmd())
	c.AddCommand(contractShowCmd())
	c.AddCommand(contractUploadCmd())
	return c
}

func contractListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your contracts grouped by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.ContractStatus(status)
			if status != "" && !filter.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				dash, err := e.ListContracts(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(dash)
				}
				printDashboard(dash)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only contracts with this status")
	return cmd
}

func contractShowCmd() *cobra.Command {
	var versions int
	cmd := &cobra.Command{
		Use:   "show <contract-id>",
		Short: "Show a contract with its versions, tasks and participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContract(cmd.Context(), args[0], func(ctx context.Context, c *engine.Contract) error {
				if viper.GetBool("json") {
					return printJSON(contractSummary(c, versions))
				}
				printContract(c, versions)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&versions, "versions", 4, "number of versions to list (0 for all)")
	return cmd
}

func contractUploadCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "upload <contract-id> <file.pdf>",
		Short: "Upload a new version of a contract",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return withContract(cmd.Context(), args[0], func(ctx context.Context, c *engine.Contract) error {
				if wait > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, wait)
					defer cancel()
				}
				v, err := c.UploadVersion(ctx, args[1], content)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("uploaded version %d (%s)\n", v.Number, v.ID)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "stop waiting for the upload after this long (0 waits for the backend timeout)")
	return cmd
}

func analysisCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "analysis",
		Short: "Inspect AI task results of the latest version",
	}
	c.AddCommand(analysisShowCmd())
	c.AddCommand(analysisSelectCmd())
	return c
}

func analysisShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <contract-id> [kind]",
		Short: "Show one task's result; without a kind, the auto-selected one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind domain.TaskKind
			if len(args) == 2 {
				kind = domain.TaskKind(args[1])
				if !kind.Valid() {
					return fmt.Errorf("unknown task kind %q", args[1])
				}
			}
			return withContract(cmd.Context(), args[0], func(ctx context.Context, c *engine.Contract) error {
				var a taskboard.Analysis
				if kind == "" {
					sel, ok := c.SelectedAnalysis()
					if !ok {
						fmt.Println("no analysis selected; pass a task kind")
						return nil
					}
					a = sel
				} else {
					a = c.Analysis(kind)
				}
				return printAnalysis(a)
			})
		},
	}
	return cmd
}

func analysisSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <contract-id> <kind>",
		Short: "Toggle the displayed task and print its result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContract(cmd.Context(), args[0], func(ctx context.Context, c *engine.Contract) error {
				kind := domain.TaskKind(args[1])
				sel, err := c.Select(kind)
				if err != nil {
					return err
				}
				if sel.Empty() {
					fmt.Printf("%s deselected\n", kind.DisplayName())
					return nil
				}
				a, _ := c.SelectedAnalysis()
				return printAnalysis(a)
			})
		},
	}
	return cmd
}

func chatCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about the latest version",
	}
	c.AddCommand(chatSendCmd())
	c.AddCommand(chatHistoryCmd())
	c.AddCommand(chatResetCmd())
	return c
}

func chatSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <contract-id> <question...>",
		Short: "Send a question and print the answer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return withContract(cmd.Context(), args[0], func(ctx context.Context, c *engine.Contract) error {
				msg, err := c.SendChat(ctx, text)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msg)
				}
				printChatMessage(msg)
				return nil
			})
		},
	}
	return cmd
}

func chatHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <contract-id>",
		Short: "Show the chat pinned to the latest version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContract(cmd.Context(), args[0], func(ctx context.Context, c *engine.Contract) error {
				snap := c.ChatHistory()
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				if len(snap.Messages) == 0 {
					fmt.Println("no messages")
					return nil
				}
				for _, m := range snap.Messages {
					printChatMessage(m)
				}
				return nil
			})
		},
	}
	return cmd
}

func chatResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <contract-id>",
		Short: "Clear the chat of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContract(cmd.Context(), args[0], func(ctx context.Context, c *engine.Contract) error {
				if err := c.ResetChat(ctx); err != nil {
					return err
				}
				fmt.Println("chat cleared")
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	c.AddCommand(logTailCmd())
	return c
}

func logTailCmd() *cobra.Command {
	var n int
	var contractID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.RecentEvents(ctx, repo.EventFilters{
					ContractID: contractID,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				printEvents(evts)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&contractID, "contract", "", "contract id filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in pactline.yml at the workspace root: backend URL and timeouts, cache sizing, chat storage, upload limits, logging and server settings. Missing sections take defaults.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default pactline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(viper.GetString("base-url"))), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(options())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate pactline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func tokenCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "token",
		Short: "Development tokens",
	}
	c.AddCommand(tokenMintCmd())
	return c
}

func tokenMintCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign an HS256 token with PACTLINE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("PACTLINE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("PACTLINE_JWT_SECRET is required to mint tokens")
			}
			tok, err := auth.Sign(secret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": tok})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (user id)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := options()
			cfg, err := app.ResolveConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			// Requests carry their own tokens.
			opts.Token = ""
			e, closeEngine, err := app.OpenEngine(cmd.Context(), opts, cfg)
			if err != nil {
				return err
			}
			defer closeEngine()
			devTokens, _ := strconv.ParseBool(os.Getenv("PACTLINE_DEV_TOKENS"))
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:      os.Getenv("PACTLINE_JWT_SECRET"),
					AllowDevTokens: devTokens,
				},
				BackendFor: func(token string) engine.Backend {
					return app.NewBackend(cfg, token)
				},
				PollInterval: cfg.Server.PollInterval,
			})
			if err != nil {
				return err
			}
			defer handler.Close()
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			slog.Info("serving pactline api", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "backend", cfg.Backend.BaseURL)
			fmt.Printf("Serving Pactline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides server.base_path)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	opts := options()
	cfg, err := app.ResolveConfig(opts)
	if err != nil {
		return err
	}
	e, closeEngine, err := app.OpenEngine(ctx, opts, cfg)
	if err != nil {
		return err
	}
	defer closeEngine()
	return fn(ctx, e)
}

// withContract opens a session on one contract for the duration of fn.
func withContract(ctx context.Context, contractID string, fn func(context.Context, *engine.Contract) error) error {
	actor, err := app.ActorID(viper.GetString("token"))
	if err != nil {
		return err
	}
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		ctx = logging.WithContractID(logging.WithActorID(ctx, actor), contractID)
		c, err := e.OpenContract(ctx, contractID, actor)
		if err != nil {
			return err
		}
		defer c.Close(ctx)
		return fn(ctx, c)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
