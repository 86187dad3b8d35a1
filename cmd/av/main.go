package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agendaviva/internal/app"
	"agendaviva/internal/config"
	"agendaviva/internal/db"
	"agendaviva/internal/domain"
	"agendaviva/internal/engine"
	"agendaviva/internal/engine/authz"
	"agendaviva/internal/migrate"
	"agendaviva/internal/repo"
	"agendaviva/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "av",
	Short: "AgendaViva CLI",
	Long: `AgendaViva runs a community activities portal: recurring schedules,
capacity-aware enrollment, approval queues, and waitlists.
- Workspace: the .agendaviva directory holding the SQLite database.
- Activities: single-date or recurring (daily/weekly/monthly) events.
- Occurrences: concrete dates generated from a recurrence rule.
- Enrollments: pending -> accepted, or waitlisted when an occurrence is full;
  cancelled is final and frees the slot for the oldest waitlisted enrollment.
- Event log: diary of changes, view with 'av log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
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
	viper.SetEnvPrefix("AGENDAVIVA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-admin", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(enrollmentCmd())
	rootCmd.AddCommand(tagCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// cliPrincipal is the local operator. Commands run against the workspace
// database directly, so the CLI is trusted with the admin role.
func cliPrincipal() authz.Principal {
	return authz.Principal{
		UserID:   viper.GetString("user-id"),
		Roles:    []string{authz.RoleAdmin},
		Approved: true,
	}
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Manage activities"}
	act.AddCommand(activityCreateCmd())
	act.AddCommand(activityListCmd())
	act.AddCommand(activityShowCmd())
	act.AddCommand(activityPublishCmd())
	act.AddCommand(activityDeleteCmd())
	act.AddCommand(activityOccurrencesCmd())
	return act
}

func activityCreateCmd() *cobra.Command {
	var (
		title, description, kind, date, timeOfDay string
		recurrenceJSON, location, policy          string
		tags, photos                              []string
		capacity, duration                        int
		requiresApproval, free, publish           bool
		price                                     float64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := domain.Activity{
				Title:              title,
				Description:        description,
				Kind:               kind,
				Time:               timeOfDay,
				Tags:               tags,
				Photos:             photos,
				Location:           location,
				CancellationPolicy: policy,
				RequiresApproval:   requiresApproval,
				Free:               free,
				Price:              price,
			}
			if date != "" {
				a.Date = &date
			}
			if recurrenceJSON != "" {
				var rule domain.RecurrenceRule
				if err := json.Unmarshal([]byte(recurrenceJSON), &rule); err != nil {
					return fmt.Errorf("invalid --recurrence: %w", err)
				}
				a.Recurrence = &rule
			}
			if cmd.Flags().Changed("capacity") {
				a.Capacity = &capacity
			}
			if cmd.Flags().Changed("duration") {
				a.DurationMinutes = &duration
			}
			if publish {
				a.State = domain.ActivityPublished
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateActivity(ctx, cliPrincipal(), a)
				if err != nil {
					return err
				}
				return printJSON(created)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "activity title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&kind, "kind", domain.KindSingle, "single or recurring")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD) for single activities")
	cmd.Flags().StringVar(&timeOfDay, "time", "", "time of day (HH:MM)")
	cmd.Flags().StringVar(&recurrenceJSON, "recurrence", "", "recurrence rule as JSON")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "max accepted enrollments per occurrence")
	cmd.Flags().BoolVar(&requiresApproval, "requires-approval", false, "enrollments start pending")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tags")
	cmd.Flags().StringSliceVar(&photos, "photo", nil, "photo URLs")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&policy, "cancellation-policy", "", "cancellation policy text")
	cmd.Flags().Float64Var(&price, "price", 0, "price")
	cmd.Flags().BoolVar(&free, "free", false, "free activity")
	cmd.Flags().IntVar(&duration, "duration", 0, "duration in minutes")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish immediately")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func activityListCmd() *cobra.Command {
	var state, search, tag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActivities(ctx, repo.ActivityFilters{State: state, Search: search, Tag: tag})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Kind", "State", "Capacity", "Approval"})
				for _, a := range items {
					capacity := "unlimited"
					if a.Capacity != nil {
						capacity = fmt.Sprintf("%d", *a.Capacity)
					}
					tw.AppendRow(table.Row{a.ID, a.Title, a.Kind, a.State, capacity, a.RequiresApproval})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "state filter (draft, published)")
	cmd.Flags().StringVar(&search, "search", "", "title/description search")
	cmd.Flags().StringVar(&tag, "tag", "", "tag filter")
	return cmd
}

func activityShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	return cmd
}

func activityPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish a draft activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.PublishActivity(ctx, cliPrincipal(), args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	return cmd
}

func activityDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				_, err := e.DeleteActivity(ctx, cliPrincipal(), args[0])
				return err
			})
		},
	}
	return cmd
}

func activityOccurrencesCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "occurrences <id>",
		Short: "List upcoming occurrences with availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Occurrences(ctx, cliPrincipal(), args[0], from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Time", "Accepted", "Slots", "Open"})
				for _, o := range items {
					slots := "unlimited"
					if o.SlotsAvailable != nil {
						slots = fmt.Sprintf("%d", *o.SlotsAvailable)
					}
					tw.AppendRow(table.Row{o.Date, o.Time, o.AcceptedCount, slots, o.HasCapacity})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "window end (YYYY-MM-DD)")
	return cmd
}

func enrollmentCmd() *cobra.Command {
	enr := &cobra.Command{Use: "enrollment", Short: "Manage enrollments"}
	enr.AddCommand(enrollmentCreateCmd())
	enr.AddCommand(enrollmentListCmd())
	enr.AddCommand(enrollmentExportCmd())
	enr.AddCommand(enrollmentActionCmd("approve", "Approve a pending or waitlisted enrollment",
		func(e engine.Engine, ctx context.Context, p authz.Principal, id string) (domain.Enrollment, engine.Outcome, error) {
			return e.Approve(ctx, p, id)
		}))
	enr.AddCommand(enrollmentActionCmd("reject", "Reject a pending or waitlisted enrollment",
		func(e engine.Engine, ctx context.Context, p authz.Principal, id string) (domain.Enrollment, engine.Outcome, error) {
			return e.Reject(ctx, p, id)
		}))
	enr.AddCommand(enrollmentActionCmd("cancel", "Cancel an enrollment",
		func(e engine.Engine, ctx context.Context, p authz.Principal, id string) (domain.Enrollment, engine.Outcome, error) {
			return e.Cancel(ctx, p, id)
		}))
	enr.AddCommand(enrollmentStatusCmd())
	return enr
}

func enrollmentCreateCmd() *cobra.Command {
	var activityID, date, user, notes string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Enroll a user in an occurrence",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				user = viper.GetString("user-id")
			}
			p := authz.Principal{UserID: user, Approved: true}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				enr, outcome, err := e.Enroll(ctx, p, engine.EnrollOptions{
					ActivityID:     activityID,
					OccurrenceDate: date,
					Notes:          notes,
				})
				if err != nil {
					return err
				}
				fmt.Printf("outcome: %s\n", outcome)
				return printJSON(enr)
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&date, "date", "", "occurrence date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&user, "user", "", "user id (defaults to --user-id)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for organizers")
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func enrollmentListCmd() *cobra.Command {
	var activityID, user, date, state string
	var csv bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enrollments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListEnrollments(ctx, repo.EnrollmentFilters{
					ActivityID:     activityID,
					UserID:         user,
					OccurrenceDate: date,
					State:          state,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Activity", "User", "Date", "State", "Created"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.ActivityID, e.UserID, e.OccurrenceDate, e.State, e.CreatedAt})
				}
				if csv {
					tw.RenderCSV()
					return nil
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity filter")
	cmd.Flags().StringVar(&user, "user", "", "user filter")
	cmd.Flags().StringVar(&date, "date", "", "occurrence date filter")
	cmd.Flags().StringVar(&state, "state", "", "state filter")
	cmd.Flags().BoolVar(&csv, "csv", false, "export as CSV")
	return cmd
}

func enrollmentExportCmd() *cobra.Command {
	var activityID, date, state string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an activity's enrollments as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListEnrollments(ctx, repo.EnrollmentFilters{
					ActivityID:     activityID,
					OccurrenceDate: date,
					State:          state,
				})
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Activity", "User", "Date", "State", "Notes", "Created", "Approved", "Cancelled"})
				for _, e := range items {
					tw.AppendRow(table.Row{
						e.ID, e.ActivityID, e.UserID, e.OccurrenceDate, e.State, e.Notes,
						e.CreatedAt, deref(e.ApprovedAt), deref(e.CancelledAt),
					})
				}
				tw.RenderCSV()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&date, "date", "", "occurrence date filter")
	cmd.Flags().StringVar(&state, "state", "", "state filter")
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func enrollmentActionCmd(verb, short string, action func(engine.Engine, context.Context, authz.Principal, string) (domain.Enrollment, engine.Outcome, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				enr, outcome, err := action(e, ctx, cliPrincipal(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("outcome: %s\n", outcome)
				return printJSON(enr)
			})
		},
	}
}

func enrollmentStatusCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Override enrollment state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				enr, outcome, err := e.SetEnrollmentState(ctx, cliPrincipal(), args[0], state)
				if err != nil {
					return err
				}
				fmt.Printf("outcome: %s\n", outcome)
				return printJSON(enr)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "target state (pending, accepted, waitlisted, cancelled)")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func tagCmd() *cobra.Command {
	tag := &cobra.Command{Use: "tag", Short: "Manage tags"}
	tag.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTags(ctx)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})
	tag.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.EnsureTag(ctx, cliPrincipal(), args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	})
	tag.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTag(ctx, args[0])
			})
		},
	})
	return tag
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})
	key.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var user, name string
	var roles []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (secret printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				user = viper.GetString("user-id")
			}
			secret := uuid.NewString() + uuid.NewString()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				k := domain.APIKey{
					ID:      uuid.NewString(),
					UserID:  user,
					Name:    name,
					Roles:   roles,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				fmt.Printf("api key (store it now, it is not shown again): %s\n", secret)
				return printJSON(k)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles carried by the key")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage portal config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show portal config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	})
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Export portal config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.Config.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			})
		},
	})
	return cfg
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import portal config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertPortalConfig(ctx, cfg); err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tokenCmd() *cobra.Command {
	var user string
	var roles []string
	var approved bool
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("AGENDAVIVA_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("AGENDAVIVA_JWT_SECRET is required")
			}
			if user == "" {
				user = viper.GetString("user-id")
			}
			token, err := server.SignToken(secret, user, roles, approved, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject user id")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles claim")
	cmd.Flags().BoolVar(&approved, "approved", false, "approved claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
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
			cfg, err := app.ResolveConfig(cmd.Context(), r, "agendaviva")
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv("AGENDAVIVA_JWT_SECRET"),
				EnableDevLogin: devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("AGENDAVIVA_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving AgendaViva API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose /auth/dev/login")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, r, "agendaviva")
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
