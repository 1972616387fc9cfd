package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insightline/internal/app"
	"insightline/internal/domain"
	"insightline/internal/engine"
	"insightline/internal/events"
	"insightline/internal/repo"
)

func insightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insight",
		Short: "Manage insights and apply lifecycle actions",
	}
	cmd.AddCommand(insightCreateCmd())
	cmd.AddCommand(insightListCmd())
	cmd.AddCommand(insightShowCmd())
	cmd.AddCommand(insightActionsCmd())
	cmd.AddCommand(insightCanCmd())
	cmd.AddCommand(insightBulkCmd())
	for _, ev := range domain.Events {
		cmd.AddCommand(insightActionCmd(ev))
	}
	return cmd
}

func insightCreateCmd() *cobra.Command {
	var id, title, summary, category string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an insight in DRAFT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("--title required")
			}
			if id == "" {
				id = uuid.NewString()
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ins, err := a.Repo.InsertInsight(ctx, domain.Insight{
					ID:       id,
					Title:    title,
					Summary:  summary,
					Category: category,
				})
				if err != nil {
					return err
				}
				return printInsight(ins)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "insight id (default: generated uuid)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&summary, "summary", "", "summary")
	cmd.Flags().StringVar(&category, "category", "", "category")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func insightListCmd() *cobra.Command {
	var status, category string
	var limit int
	var counts bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List insights, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := domain.State(strings.ToUpper(status))
			if status != "" && !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if counts {
					return printCounts(ctx, a.Repo)
				}
				items, err := a.Repo.ListInsights(ctx, repo.InsightFilters{Status: st, Category: category, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Status", "Retries", "Updated"})
				for _, ins := range items {
					tw.AppendRow(table.Row{ins.ID, ins.Title, ins.Category, ins.Status, ins.Review.RetryCount, ins.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().BoolVar(&counts, "counts", false, "show counts by status instead of rows")
	return cmd
}

func printCounts(ctx context.Context, r repo.Repo) error {
	counts, err := r.CountByStatus(ctx)
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(counts)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Status", "Count"})
	for _, st := range domain.States {
		if st.Terminal() {
			continue
		}
		tw.AppendRow(table.Row{st, counts[st]})
	}
	tw.Render()
	return nil
}

func insightShowCmd() *cobra.Command {
	var withJobs bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an insight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ins, err := a.Service.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !withJobs {
					return printInsight(ins)
				}
				jobs, err := a.Repo.ListGenerationJobs(ctx, ins.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"insight": ins, "generation_jobs": jobs})
			})
		},
	}
	cmd.Flags().BoolVar(&withJobs, "jobs", false, "include queued post-generation jobs")
	return cmd
}

func insightActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <id>",
		Short: "List actions available from the current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evs, err := a.Service.LegalActions(ctx, args[0])
				if err != nil {
					return err
				}
				names := make([]string, 0, len(evs))
				for _, ev := range evs {
					names = append(names, engine.ActionName(ev))
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": args[0], "actions": names})
				}
				fmt.Println(strings.Join(names, "\n"))
				return nil
			})
		},
	}
}

func insightCanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can <id> <action>",
		Short: "Check whether an action would be accepted, guards included",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := engine.ParseAction(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ok, err := a.Service.CanTransition(ctx, args[0], ev)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": args[0], "action": engine.ActionName(ev), "allowed": ok})
				}
				fmt.Println(ok)
				return nil
			})
		},
	}
}

type payloadFlags struct {
	approvedBy string
	reviewedBy string
	reason     string
	score      float64
}

func (f *payloadFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.approvedBy, "approved-by", "", "approver (default: --actor-id)")
	cmd.Flags().StringVar(&f.reviewedBy, "reviewed-by", "", "reviewer (default: --actor-id)")
	cmd.Flags().StringVar(&f.reason, "reason", "", "rejection, archive or failure reason")
	cmd.Flags().Float64Var(&f.score, "score", 0, "approval score")
}

func (f *payloadFlags) payload(cmd *cobra.Command) engine.Payload {
	p := engine.Payload{
		ActorID:    viper.GetString("actor-id"),
		ApprovedBy: f.approvedBy,
		ReviewedBy: f.reviewedBy,
		Reason:     f.reason,
	}
	if cmd.Flags().Changed("score") {
		score := f.score
		p.Score = &score
	}
	return p
}

func insightActionCmd(ev domain.Event) *cobra.Command {
	var pf payloadFlags
	name := strings.ReplaceAll(engine.ActionName(ev), "_", "-")
	cmd := &cobra.Command{
		Use:   name + " <id>",
		Short: fmt.Sprintf("Apply %s to one insight", ev),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ins, err := a.Service.Transition(ctx, args[0], ev, pf.payload(cmd))
				if err != nil {
					return err
				}
				return printInsight(ins)
			})
		},
	}
	pf.bind(cmd)
	return cmd
}

func insightBulkCmd() *cobra.Command {
	var pf payloadFlags
	var ids []string
	cmd := &cobra.Command{
		Use:   "bulk <action> [id...]",
		Short: "Apply one action to many insights; failures are reported per id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all := append(append([]string(nil), args[1:]...), ids...)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Service.BulkTransition(ctx, all, args[0], pf.payload(cmd))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %d requested, %d succeeded, %d failed, %d notified\n",
					res.Action, res.TotalRequested, len(res.Succeeded), len(res.Failed), res.Notified)
				if len(res.Failed) == 0 {
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Reason", "Message"})
				for _, f := range res.Failed {
					tw.AppendRow(table.Row{f.ID, f.Reason, f.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "comma-separated insight ids")
	pf.bind(cmd)
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Journal == nil {
					return fmt.Errorf("event journal disabled (events.journal: false)")
				}
				rows, err := a.Journal.Latest(ctx, events.Filter{Type: evtType, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Insight", "Actor", "From", "To"})
				for _, e := range rows {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityID, e.ActorID, e.FromState, e.ToState})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "insight id filter")
	return cmd
}

func printInsight(ins domain.Insight) error {
	if viper.GetBool("json") {
		return printJSON(ins)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	rc := ins.Review
	score := ""
	if rc.Score != nil {
		score = fmt.Sprintf("%g", *rc.Score)
	}
	rows := []table.Row{
		{"id", ins.ID},
		{"title", ins.Title},
		{"category", ins.Category},
		{"status", ins.Status},
		{"approved_by", deref(rc.ApprovedBy)},
		{"score", score},
		{"reviewed_by", deref(rc.ReviewedBy)},
		{"rejection_reason", deref(rc.RejectionReason)},
		{"failure_reason", deref(rc.FailureReason)},
		{"archived_reason", deref(rc.ArchivedReason)},
		{"retry_count", rc.RetryCount},
		{"updated_at", ins.UpdatedAt},
	}
	for _, r := range rows {
		if s, ok := r[1].(string); ok && s == "" {
			continue
		}
		tw.AppendRow(r)
	}
	actions := make([]string, 0)
	for _, ev := range engine.LegalEvents(ins.Status) {
		actions = append(actions, engine.ActionName(ev))
	}
	sort.Strings(actions)
	tw.AppendFooter(table.Row{"actions", strings.Join(actions, ", ")})
	tw.Render()
	return nil
}
