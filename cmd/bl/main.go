package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boardline/internal/cfd"
	"boardline/internal/config"
	"boardline/internal/domain"
	"boardline/internal/engine"
	"boardline/internal/events"
	"boardline/internal/export"
	"boardline/internal/server"
	"boardline/internal/storage"
	"boardline/internal/storage/memstore"
	"boardline/internal/storage/pgstore"
	"boardline/internal/storage/sqlstore"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Boardline CLI",
	Long: `Boardline tracks tickets on boards governed by workflow state machines.
Every mutation is audited in an append-only activity log, and daily
snapshots feed cumulative flow diagrams. Storage is a local sqlite file by
default; configure boardline.yml for postgres or in-memory.`,
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
	viper.SetEnvPrefix("BOARDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "local-user", "actor recorded on activities")
	rootCmd.PersistentFlags().String("board", "", "board id (default for ticket commands)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("board", rootCmd.PersistentFlags().Lookup("board"))
}

func registerCommands() {
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(cfdCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- store wiring ---

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlstore.Open(cfg.Storage.Path)
	case "postgres":
		return pgstore.Open(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func setup(ctx context.Context) (*config.Config, storage.Store, engine.Engine, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, nil, engine.Engine{}, err
	}
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == "memory" {
		// A CLI session needs durable state; default to a workspace db
		// unless a config file explicitly chose a backend.
		cfg.Storage.Backend = "sqlite"
		if cfg.Storage.Path == "" {
			cfg.Storage.Path = ".boardline/boardline.db"
		}
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, engine.Engine{}, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, nil, engine.Engine{}, err
	}
	e := engine.New(store, events.NewBus())
	for _, w := range cfg.Workflows {
		if _, err := e.DefineWorkflow(ctx, w.Domain()); err != nil {
			store.Close()
			return nil, nil, engine.Engine{}, fmt.Errorf("config workflow %s: %w", w.ID, err)
		}
	}
	return cfg, store, e, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	_, store, e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, e)
}

func withStore(ctx context.Context, fn func(context.Context, storage.Store) error) error {
	_, store, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

// --- boards ---

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "board", Short: "Manage boards"}
	cmd.AddCommand(boardCreateCmd())
	cmd.AddCommand(boardListCmd())
	cmd.AddCommand(boardShowCmd())
	cmd.AddCommand(boardDeleteCmd())
	cmd.AddCommand(boardKanbanCmd())
	cmd.AddCommand(boardBacklogCmd())
	return cmd
}

func boardCreateCmd() *cobra.Command {
	var desc, workflowID string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.CreateBoard(ctx, engine.BoardCreateOptions{
					Name:        args[0],
					Description: desc,
					WorkflowID:  workflowID,
				})
				if err != nil {
					return err
				}
				return printJSON(b)
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "board description")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "workflow id (default kanban)")
	return cmd
}

func boardListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				boards, err := e.ListBoards(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(boards)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Workflow", "Created"})
				for _, b := range boards {
					tw.AppendRow(table.Row{b.ID, b.Name, b.WorkflowID, b.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func boardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <board-id>",
		Short: "Show board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.GetBoard(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(b)
			})
		},
	}
}

func boardDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <board-id>",
		Short: "Delete board and its tickets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteBoard(ctx, args[0])
			})
		},
	}
}

func boardKanbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kanban <board-id>",
		Short: "Show tickets grouped by workflow state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cols, err := e.KanbanView(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cols)
				}
				for _, col := range cols {
					fmt.Printf("%s (%d)\n", col.State, len(col.Tickets))
					for _, t := range col.Tickets {
						fmt.Printf("  %s  %s [%s]\n", t.ID, t.Title, t.Priority)
					}
				}
				return nil
			})
		},
	}
}

func boardBacklogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backlog <board-id>",
		Short: "Show backlog, most urgent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tickets, err := e.Backlog(ctx, args[0])
				if err != nil {
					return err
				}
				return printTickets(tickets)
			})
		},
	}
}

// --- tickets ---

func ticketCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ticket", Short: "Manage tickets"}
	cmd.AddCommand(ticketAddCmd())
	cmd.AddCommand(ticketListCmd())
	cmd.AddCommand(ticketShowCmd())
	cmd.AddCommand(ticketUpdateCmd())
	cmd.AddCommand(ticketMoveCmd())
	cmd.AddCommand(ticketAssignCmd())
	cmd.AddCommand(ticketDeleteCmd())
	cmd.AddCommand(ticketCommentCmd())
	cmd.AddCommand(ticketCommentsCmd())
	cmd.AddCommand(ticketSubtaskCmd())
	return cmd
}

func requireBoard() (string, error) {
	board := viper.GetString("board")
	if board == "" {
		return "", fmt.Errorf("board id required (use --board)")
	}
	return board, nil
}

func ticketAddCmd() *cobra.Command {
	var desc, status, priority, parentID, dueDate, fieldsJSON string
	var labels, assignees []string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := requireBoard()
			if err != nil {
				return err
			}
			var custom map[string]any
			if fieldsJSON != "" {
				if err := json.Unmarshal([]byte(fieldsJSON), &custom); err != nil {
					return fmt.Errorf("invalid --fields: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTicket(ctx, engine.TicketCreateOptions{
					BoardID:      board,
					Title:        args[0],
					Description:  desc,
					Status:       status,
					Priority:     priority,
					Labels:       labels,
					Assignees:    assignees,
					ParentID:     parentID,
					CustomFields: custom,
					DueDate:      dueDate,
					Actor:        viper.GetString("actor"),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "ticket description")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default: workflow initial state)")
	cmd.Flags().StringVar(&priority, "priority", "", "urgent|high|medium|low")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "labels")
	cmd.Flags().StringSliceVar(&assignees, "assignee", nil, "assignees")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent ticket id")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&fieldsJSON, "fields", "", "custom fields as JSON object")
	return cmd
}

func ticketListCmd() *cobra.Command {
	var status, priority, assignee, label string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := requireBoard()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tickets, err := e.ListTickets(ctx, storage.TicketFilters{
					BoardID:  board,
					Status:   status,
					Priority: priority,
					Assignee: assignee,
					Label:    label,
					Limit:    limit,
					Offset:   offset,
				})
				if err != nil {
					return err
				}
				return printTickets(tickets)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee")
	cmd.Flags().StringVar(&label, "label", "", "filter by label")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func ticketShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <ticket-id>",
		Short: "Show ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTicket(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func ticketUpdateCmd() *cobra.Command {
	var title, desc, status, priority, parentID, dueDate, fieldsJSON string
	var labels, assignees []string
	cmd := &cobra.Command{
		Use:   "update <ticket-id>",
		Short: "Update ticket fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch storage.TicketPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &desc
			}
			if flags.Changed("status") {
				patch.Status = &status
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("label") {
				patch.Labels = &labels
			}
			if flags.Changed("assignee") {
				patch.Assignees = &assignees
			}
			if flags.Changed("parent") {
				patch.ParentID = &parentID
			}
			if flags.Changed("due") {
				patch.DueDate = &dueDate
			}
			if flags.Changed("fields") {
				var custom map[string]any
				if err := json.Unmarshal([]byte(fieldsJSON), &custom); err != nil {
					return fmt.Errorf("invalid --fields: %w", err)
				}
				patch.CustomFields = &custom
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTicket(ctx, args[0], patch, viper.GetString("actor"))
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status (transition-checked)")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "replace labels")
	cmd.Flags().StringSliceVar(&assignees, "assignee", nil, "replace assignees")
	cmd.Flags().StringVar(&parentID, "parent", "", "new parent id (empty clears)")
	cmd.Flags().StringVar(&dueDate, "due", "", "new due date (empty clears)")
	cmd.Flags().StringVar(&fieldsJSON, "fields", "", "replace custom fields (JSON object)")
	return cmd
}

func ticketMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <ticket-id> <status>",
		Short: "Transition ticket status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.MoveTicket(ctx, args[0], args[1], viper.GetString("actor"))
				if err != nil {
					var te *engine.InvalidTransitionError
					if errors.As(err, &te) && len(te.Allowed) > 0 {
						return fmt.Errorf("%w (try: %s)", err, strings.Join(te.Allowed, ", "))
					}
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func ticketAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <ticket-id> [user...]",
		Short: "Replace ticket assignees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AssignTicket(ctx, args[0], args[1:], viper.GetString("actor"))
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func ticketDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ticket-id>",
		Short: "Delete ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTicket(ctx, args[0])
			})
		},
	}
}

func ticketCommentCmd() *cobra.Command {
	var replyTo string
	cmd := &cobra.Command{
		Use:   "comment <ticket-id> <content>",
		Short: "Add comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var c domain.Comment
				var err error
				if replyTo != "" {
					c, err = e.ReplyToComment(ctx, args[0], replyTo, viper.GetString("actor"), args[1])
				} else {
					c, err = e.AddComment(ctx, engine.CommentOptions{
						TicketID: args[0],
						Author:   viper.GetString("actor"),
						Content:  args[1],
					})
				}
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "parent comment id")
	return cmd
}

func ticketCommentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comments <ticket-id>",
		Short: "List comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				comments, err := e.ListComments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(comments)
			})
		},
	}
}

func ticketSubtaskCmd() *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "subtask <parent-id> <title>",
		Short: "Create subtask",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateSubtask(ctx, args[0], engine.TicketCreateOptions{
					Title:    args[1],
					Priority: priority,
					Actor:    viper.GetString("actor"),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "urgent|high|medium|low")
	return cmd
}

// --- activity ---

func activityCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity <ticket-id>",
		Short: "Show ticket audit feed, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				acts, err := e.Activities(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(acts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Actor", "Action", "Changes"})
				for _, a := range acts {
					changes, _ := json.Marshal(a.Changes)
					tw.AppendRow(table.Row{a.CreatedAt, a.Actor, a.Action, string(changes)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	return cmd
}

// --- cfd ---

func cfdCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cfd", Short: "Cumulative flow diagram data"}
	cmd.AddCommand(cfdSnapshotCmd())
	cmd.AddCommand(cfdBackfillCmd())
	cmd.AddCommand(cfdShowCmd())
	return cmd
}

func cfdSnapshotCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "snapshot <board-id>",
		Short: "Record today's per-status counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
				snaps, err := cfd.New(store).TakeSnapshot(ctx, args[0], date)
				if err != nil {
					return err
				}
				return printJSON(snaps)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "snapshot date YYYY-MM-DD (default today)")
	return cmd
}

func cfdBackfillCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "backfill <board-id>",
		Short: "Reconstruct missing snapshots from the activity log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" {
				return fmt.Errorf("--from is required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
				n, err := cfd.New(store).Backfill(ctx, args[0], from, to)
				if err != nil {
					return err
				}
				fmt.Printf("backfilled %d days\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD (default today)")
	return cmd
}

func cfdShowCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "show <board-id>",
		Short: "Show per-day per-status counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
				days, err := cfd.New(store).Data(ctx, args[0], from, to)
				if err != nil {
					return err
				}
				return printJSON(days)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD")
	return cmd
}

// --- search ---

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search tickets (key:value filters plus free text)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tickets, err := e.Search(ctx, viper.GetString("board"), args[0])
				if err != nil {
					return err
				}
				return printTickets(tickets)
			})
		},
	}
}

// --- workflows ---

func workflowCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "workflow", Short: "Manage workflows"}
	cmd.AddCommand(workflowListCmd())
	cmd.AddCommand(workflowShowCmd())
	cmd.AddCommand(workflowDefineCmd())
	return cmd
}

func workflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ws, err := e.ListWorkflows(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ws)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "States"})
				for _, w := range ws {
					tw.AppendRow(table.Row{w.ID, w.Name, strings.Join(w.States, " -> ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func workflowShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWorkflow(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
}

func workflowDefineCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "define",
		Short: "Define custom workflow from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var w domain.Workflow
			if err := json.Unmarshal(data, &w); err != nil {
				return fmt.Errorf("invalid workflow file: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.DefineWorkflow(ctx, w)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "workflow definition (JSON)")
	return cmd
}

// --- export / import ---

func exportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export boards and tickets as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
				out := os.Stdout
				if file != "" {
					f, err := os.Create(file)
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}
				return export.Write(ctx, store, out)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "output file (default stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an export document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
				res, err := export.Read(ctx, store, f)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "export document (JSON)")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			server.StartWebhooks(cmd.Context(), e.Bus, cfg.Webhooks, logger)
			handler := server.New(server.Config{
				Engine:   e,
				CFD:      cfd.New(store),
				Store:    store,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
				Logger:   logger,
			})
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving", "addr", addr, "base_path", basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// --- helpers ---

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTickets(tickets []domain.Ticket) error {
	if viper.GetBool("json") {
		return printJSON(tickets)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignees"})
	for _, t := range tickets {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, strings.Join(t.Assignees, ",")})
	}
	tw.Render()
	return nil
}
