package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hivecmu/hive/internal/app"
	"github.com/hivecmu/hive/internal/config"
	"github.com/hivecmu/hive/internal/db"
	"github.com/hivecmu/hive/internal/domain"
	"github.com/hivecmu/hive/internal/engine"
	"github.com/hivecmu/hive/internal/generator"
	"github.com/hivecmu/hive/internal/migrate"
	"github.com/hivecmu/hive/internal/repo"
	"github.com/hivecmu/hive/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Hive CLI",
	Long: `Hive turns a short team questionnaire into a reviewed communication structure.
The flow:
- Workspace: your .hive directory with only the database; configs live in the DB and are imported explicitly.
- Job: one run of the structure workflow; it owns the intake form and every proposal version.
- Intake: community size, core activities, moderation capacity, and a channel budget.
- Proposal: the generated channel/committee layout, normalized and scored; regenerate for a new version.
- Validate: a human marks the latest proposal as reviewed.
- Apply: materialize the proposal as real channels and committees, atomically and idempotently.
- Event log: diary of changes, view with 'hive log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("dir")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HIVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("dir", "d", ".", "data directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("workspace", "w", "", "workspace id (overrides config default)")
	_ = viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
}

func registerCommands() {
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(blueprintCmd())
	rootCmd.AddCommand(channelCmd())
	rootCmd.AddCommand(committeeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workspace", Short: "Manage workspaces"}
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspaceCreateCmd())
	ws.AddCommand(workspaceShowCmd())
	ws.AddCommand(workspaceUseCmd())
	ws.AddCommand(workspaceConfigCmd())
	return ws
}

func workspaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func workspaceCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("dir")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg, generator.NewHeuristic(cfg))
			w, err := e.InitWorkspace(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(w)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "workspace id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func workspaceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("workspace")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = e.Config.Workspace.ID
				}
				w, err := e.Repo.GetWorkspace(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func workspaceUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current workspace for this directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceID := strings.TrimSpace(args[0])
			if workspaceID == "" {
				return fmt.Errorf("workspace id is required")
			}
			dir := viper.GetString("dir")
			if err := setEnvValue(filepath.Join(dir, ".env"), "HIVE_WORKSPACE", workspaceID); err != nil {
				return err
			}
			fmt.Printf("Set HIVE_WORKSPACE=%s in %s/.env\n", workspaceID, dir)
			return nil
		},
	}
	return cmd
}

func workspaceConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
	}
	cfg.AddCommand(workspaceConfigShowCmd())
	cfg.AddCommand(workspaceConfigImportCmd())
	cfg.AddCommand(workspaceConfigInitCmd())
	return cfg
}

func workspaceConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show workspace config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func workspaceConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import workspace config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			workspaceID := cfg.Workspace.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if workspaceID == "" {
					workspaceID = e.Config.Workspace.ID
				}
				if err := e.Repo.UpsertWorkspaceConfig(ctx, workspaceID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func workspaceConfigInitCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default hive.yml to the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = viper.GetString("workspace")
			}
			if id == "" {
				return fmt.Errorf("--id or --workspace required")
			}
			path := config.Path(viper.GetString("dir"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(id)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "workspace id")
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage structure jobs",
		Long:  "A job is one run of the structure workflow: intake in, versioned proposals out, one apply at the end. Statuses go created -> proposed -> validated -> applying -> applied (failed is the exit).",
	}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobIntakeCmd())
	job.AddCommand(jobApplyCmd())
	return job
}

func jobCreateCmd() *cobra.Command {
	var size, moderation, extra string
	var activities []string
	var budget int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job from intake answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.CreateJob(ctx, engine.JobCreateOptions{
					WorkspaceID: e.Config.Workspace.ID,
					ActorID:     viper.GetString("actor-id"),
					Intake: domain.IntakeForm{
						CommunitySize:      size,
						CoreActivities:     activities,
						ModerationCapacity: moderation,
						ChannelBudget:      budget,
						AdditionalContext:  extra,
					},
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "community size (small, medium, large)")
	cmd.Flags().StringSliceVar(&activities, "activity", nil, "core activity (repeatable)")
	cmd.Flags().StringVar(&moderation, "moderation", "", "moderation capacity (light, moderate, heavy)")
	cmd.Flags().IntVar(&budget, "budget", 0, "channel budget")
	cmd.Flags().StringVar(&extra, "context", "", "additional context")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("moderation")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func jobListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.Repo.ListJobs(ctx, e.Config.Workspace.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Created By", "Created At"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Status, j.CreatedBy, j.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func jobShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobIntakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intake <job-id>",
		Short: "Show a job's intake form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.Repo.GetIntake(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	return cmd
}

func jobApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <job-id>",
		Short: "Apply the latest proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ApplyProposal(ctx, args[0], e.Config.Workspace.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Job %s applied: %d new entities (%d channels, %d committees)\n",
					res.Job.ID, res.CreatedCount, len(res.CreatedChannels), len(res.CreatedCommittees))
				return nil
			})
		},
	}
	return cmd
}

func proposalCmd() *cobra.Command {
	prop := &cobra.Command{
		Use:   "proposal",
		Short: "Manage proposals",
		Long:  "Proposals are the generated structure layouts. Each generate run appends a new version; validate marks the latest one as human-reviewed.",
	}
	prop.AddCommand(proposalGenerateCmd())
	prop.AddCommand(proposalListCmd())
	prop.AddCommand(proposalShowCmd())
	prop.AddCommand(proposalValidateCmd())
	return prop
}

func proposalGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <job-id>",
		Short: "Generate the next proposal version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				record, err := e.GenerateProposal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(record)
			})
		},
	}
	return cmd
}

func proposalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <job-id>",
		Short: "List proposal versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProposals(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Version", "Score", "Channels", "Committees", "Created At"})
				for _, p := range items {
					score := ""
					if p.Score != nil {
						score = strconv.FormatFloat(*p.Score, 'f', 2, 64)
					}
					tw.AppendRow(table.Row{p.Version, score, len(p.Proposal.Channels), len(p.Proposal.Committees), p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func proposalShowCmd() *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a proposal (latest by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var record domain.ProposalRecord
				var err error
				if cmd.Flags().Changed("version") {
					record, err = e.Repo.GetProposal(ctx, args[0], version)
				} else {
					record, err = e.LatestProposal(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(record)
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "proposal version")
	return cmd
}

func proposalValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <job-id>",
		Short: "Mark the latest proposal as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.MarkJobValidated(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func blueprintCmd() *cobra.Command {
	bp := &cobra.Command{Use: "blueprint", Short: "Applied blueprints"}
	bp.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Show the applied blueprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.Repo.GetBlueprint(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	})
	return bp
}

func channelCmd() *cobra.Command {
	ch := &cobra.Command{Use: "channel", Short: "Workspace channels"}
	ch.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListChannels(ctx, e.Config.Workspace.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Type", "Private", "Description"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.Name, c.Type, c.IsPrivate, c.Description})
				}
				tw.Render()
				return nil
			})
		},
	})
	return ch
}

func committeeCmd() *cobra.Command {
	cm := &cobra.Command{Use: "committee", Short: "Workspace committees"}
	cm.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List committees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCommittees(ctx, e.Config.Workspace.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Description"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.Name, c.Description})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cm
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: workspace creation, job transitions, proposals, and applies.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Workspace.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyDeleteCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rawKey := uuid.New().String() + uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(rawKey),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				out := map[string]any{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"key":      rawKey,
				}
				fmt.Println("Store this key now; only its hash is saved.")
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created At"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("dir")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveWorkspaceAndConfig(cmd.Context(), viper.GetString("workspace"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()
			gen, err := buildGenerator(cfg, log)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg, gen)
			e.Log = log
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("HIVE_JWT_SECRET"), Logger: log}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("HIVE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Hive API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func buildGenerator(cfg *config.Config, log *zap.Logger) (generator.Generator, error) {
	if cfg.Generator.Provider == "openai" {
		return generator.NewOpenAI(generator.OpenAIOptions{
			APIKey:  os.Getenv("HIVE_OPENAI_API_KEY"),
			BaseURL: cfg.Generator.BaseURL,
			Model:   cfg.Generator.Model,
			Timeout: time.Duration(cfg.Generator.TimeoutSeconds) * time.Second,
			Log:     log,
		})
	}
	return generator.NewHeuristic(cfg), nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("dir")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveWorkspaceAndConfig(ctx, viper.GetString("workspace"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	gen, err := buildGenerator(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, gen)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("dir")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
