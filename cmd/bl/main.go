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
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"batchline/internal/config"
	"batchline/internal/db"
	"batchline/internal/domain"
	"batchline/internal/migrate"
	"batchline/internal/planner"
	"batchline/internal/repo"
	"batchline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Batchline CLI",
	Long: `Batchline schedules pending production orders into (date, reactor, shift) slots.
- Workspace: your .batchline directory holding the database; policy lives in batchline.yml.
- Orders: manufacturing demand with a quantity and a deadline; oversized orders are split into batches.
- Reactors: production units with a per-shift capacity; inactive reactors are skipped.
- Holidays: blocked days on top of weekends.
- Plan run: assigns eligible orders most-urgent-first; review the proposal, then 'bl plan confirm'.
- Event log: diary of changes, view with 'bl log tail'.`,
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
	viper.SetEnvPrefix("BATCHLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(reactorCmd())
	rootCmd.AddCommand(holidayCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func orderCmd() *cobra.Command {
	order := &cobra.Command{
		Use:   "order",
		Short: "Manage orders",
		Long:  "Orders are the demand book. Pending orders with a deadline are eligible for planning; planned orders carry their assigned slot.",
	}
	order.AddCommand(orderAddCmd())
	order.AddCommand(orderListCmd())
	order.AddCommand(orderShowCmd())
	order.AddCommand(orderDeleteCmd())
	return order
}

func orderAddCmd() *cobra.Command {
	var id, article, description, client, reference, quantity, orderDate, deadline, externalID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(quantity)
			if err != nil || !qty.IsPositive() {
				return fmt.Errorf("--quantity must be a positive number")
			}
			for _, d := range []string{orderDate, deadline} {
				if d == "" {
					continue
				}
				if _, err := planner.ParseDay(d); err != nil {
					return fmt.Errorf("dates must be YYYY-MM-DD: %w", err)
				}
			}
			if id == "" {
				id = uuid.New().String()
			}
			now := time.Now().UTC().Format(time.RFC3339)
			o := domain.Order{
				ID:                 id,
				ArticleCode:        article,
				ArticleDescription: description,
				ClientName:         client,
				OrderReference:     reference,
				QuantityKg:         qty,
				OrderedKg:          qty,
				ServedKg:           decimal.Zero,
				PendingKg:          qty,
				OrderDate:          optionalString(orderDate),
				Deadline:           optionalString(deadline),
				Status:             domain.StatusPending,
				ExternalID:         optionalString(externalID),
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertOrder(ctx, o); err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "order id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&article, "article", "", "article code")
	cmd.Flags().StringVar(&description, "description", "", "article description")
	cmd.Flags().StringVar(&client, "client", "", "client name")
	cmd.Flags().StringVar(&reference, "reference", "", "order reference")
	cmd.Flags().StringVar(&quantity, "quantity", "", "quantity in kg")
	cmd.Flags().StringVar(&orderDate, "order-date", "", "order date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&externalID, "external-id", "", "external system id")
	_ = cmd.MarkFlagRequired("article")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func orderListCmd() *cobra.Command {
	var f repo.OrderFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				orders, err := r.ListOrders(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Article", "Client", "Qty (kg)", "Status", "Deadline", "Plan", "Reactor", "Shift", "Batch"})
				for _, o := range orders {
					tw.AppendRow(table.Row{
						o.ID, o.ArticleCode, o.ClientName, o.QuantityKg.String(), o.Status,
						strOrDash(o.Deadline), strOrDash(o.PlanDate), strOrDash(o.ReactorID),
						strOrDash(o.Shift), strOrDash(o.BatchLabel),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (pending, planned, produced)")
	cmd.Flags().StringVar(&f.Client, "client", "", "client filter")
	cmd.Flags().StringVar(&f.Article, "article", "", "article code filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := r.GetOrder(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func orderDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteOrder(ctx, id)
			})
		},
	}
	return cmd
}

func reactorCmd() *cobra.Command {
	reactor := &cobra.Command{
		Use:   "reactor",
		Short: "Manage reactors",
		Long:  "Reactors host one batch per shift. Capacity decides which reactor fits a batch; inactive reactors never receive assignments.",
	}
	reactor.AddCommand(reactorAddCmd())
	reactor.AddCommand(reactorListCmd())
	reactor.AddCommand(reactorSetActiveCmd())
	return reactor
}

func reactorAddCmd() *cobra.Command {
	var id, name, capacity string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a reactor",
		RunE: func(cmd *cobra.Command, args []string) error {
			capKg, err := decimal.NewFromString(capacity)
			if err != nil || !capKg.IsPositive() {
				return fmt.Errorf("--capacity must be a positive number")
			}
			if name == "" {
				name = id
			}
			r := domain.Reactor{
				ID:         id,
				Name:       name,
				CapacityKg: capKg,
				Active:     true,
				CreatedAt:  time.Now().UTC().Format(time.RFC3339),
			}
			return withRepo(cmd.Context(), func(ctx context.Context, rp repo.Repo) error {
				if err := rp.InsertReactor(ctx, r); err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "reactor id")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to id)")
	cmd.Flags().StringVar(&capacity, "capacity", "", "capacity in kg per shift")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("capacity")
	return cmd
}

func reactorListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reactors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListReactors(ctx, activeOnly)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Capacity (kg)", "Active"})
				for _, re := range items {
					tw.AppendRow(table.Row{re.ID, re.Name, re.CapacityKg.String(), re.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active reactors")
	return cmd
}

func reactorSetActiveCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "set-active <id>",
		Short: "Activate or deactivate a reactor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.SetReactorActive(ctx, id, active); err != nil {
					return err
				}
				re, err := r.GetReactor(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(re)
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", true, "active state")
	return cmd
}

func holidayCmd() *cobra.Command {
	holiday := &cobra.Command{
		Use:   "holiday",
		Short: "Manage holidays",
	}
	holiday.AddCommand(holidayAddCmd())
	holiday.AddCommand(holidayListCmd())
	holiday.AddCommand(holidayRemoveCmd())
	return holiday
}

func holidayAddCmd() *cobra.Command {
	var day, description string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a holiday",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := planner.ParseDay(day); err != nil {
				return fmt.Errorf("--day must be YYYY-MM-DD: %w", err)
			}
			h := domain.Holiday{Day: day, Description: description}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertHoliday(ctx, h); err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("day")
	return cmd
}

func holidayListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List holidays",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListHolidays(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func holidayRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <day>",
		Short: "Remove a holiday",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteHoliday(ctx, day)
			})
		},
	}
	return cmd
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{
		Use:   "plan",
		Short: "Scheduling runs",
		Long:  "A run proposes assignments for pending orders. Review the proposal (edit if needed), then confirm to re-validate and persist it.",
	}
	plan.AddCommand(planRunCmd())
	plan.AddCommand(planConfirmCmd())
	return plan
}

func planRunCmd() *cobra.Command {
	var orderIDs []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler over pending orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e planner.Engine) error {
				report, err := e.Run(ctx, planner.RunOptions{
					OrderIDs: orderIDs,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Order", "Source", "Article", "Qty (kg)", "Batch", "Date", "Reactor", "Shift", "Overflow"})
				for _, a := range report.Assignments {
					overflow := ""
					if a.Overflow {
						overflow = "yes"
					}
					tw.AppendRow(table.Row{
						a.OrderID, a.SourceID, a.ArticleCode, a.QuantityKg.String(),
						a.BatchLabel, a.PlanDate, a.ReactorID, a.Shift, overflow,
					})
				}
				tw.Render()
				fmt.Printf("planned %d, split %d, skipped %d\n",
					report.PlannedCount, report.SplitCount, report.SkippedCount)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&orderIDs, "order-id", []string{}, "restrict run to order id (repeatable)")
	return cmd
}

func planConfirmCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a reviewed assignment set",
		Long:  "Reads assignments from a JSON file (the run report's assignments, possibly edited) and persists them after re-validating slots and calendar rules.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var edits []planner.AssignmentEdit
			if err := json.Unmarshal(data, &edits); err != nil {
				return fmt.Errorf("invalid assignments file: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e planner.Engine) error {
				err := e.Confirm(ctx, edits, viper.GetString("actor-id"))
				var conflict *planner.SlotConflictError
				if errors.As(err, &conflict) {
					if viper.GetBool("json") {
						return printJSON(map[string]any{"collisions": conflict.Collisions})
					}
					for _, c := range conflict.Collisions {
						fmt.Printf("conflict: %s wants %s/%s/%s held by %s\n",
							c.OrderID, c.Slot.Day, c.Slot.ReactorID, c.Slot.Shift, c.Against)
					}
					return fmt.Errorf("confirm rejected: %d slot conflicts", len(conflict.Collisions))
				}
				if err != nil {
					return err
				}
				fmt.Printf("confirmed %d assignments\n", len(edits))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to assignments JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.CountOrdersByStatus(ctx)
				if err != nil {
					return err
				}
				reactors, err := r.ListReactors(ctx, true)
				if err != nil {
					return err
				}
				holidays, err := r.ListHolidays(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"order_counts":    counts,
						"active_reactors": len(reactors),
						"holidays":        len(holidays),
					})
				}
				fmt.Println("Orders:")
				for _, status := range []string{domain.StatusPending, domain.StatusPlanned, domain.StatusProduced} {
					fmt.Printf("  %s: %d\n", status, counts[status])
				}
				fmt.Printf("Active reactors: %d\n", len(reactors))
				fmt.Printf("Holidays: %d\n", len(holidays))
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect planning policy",
		Long:  "Policy is the rulebook in batchline.yml: lead time, deadline buffer, window bound, batch size limit, and the shift roster.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default batchline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
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
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
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

func serveCmd() *cobra.Command {
	var addr, basePath string
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
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			e := planner.New(conn, cfg, log)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
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
			fmt.Printf("Serving Batchline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
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

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func withEngine(ctx context.Context, fn func(context.Context, planner.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	e := planner.New(conn, cfg, log)
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
