package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Promptonauts/configrepo/pkg/models"
	"github.com/Promptonauts/configrepo/pkg/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Column string
	Order  string
	Offset int
	Limit  int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}
	cmd := &cobra.Command{
		Use:   "history AGENT",
		Short: "List completed jobs that ran on an agent",
		Example: `  configrepo history 3f2a-agent --column result --order asc
  configrepo history 3f2a-agent --offset 25 --limit 25`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := GetConfig(cmd.Context()), GetLogger(cmd.Context())
			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			agent := args[0]
			jobs, err := st.CompletedJobsOnAgent(agent,
				store.HistoryColumn(opts.Column),
				store.SortOrder(strings.ToUpper(opts.Order)),
				opts.Offset, opts.Limit)
			if err != nil {
				return err
			}
			total, err := st.TotalCompletedJobsOnAgent(agent)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderJobs(out, jobs)
			fmt.Fprintf(out, "showing %d of %d completed job(s) on %s\n", len(jobs), total, agent)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Column, "column", string(store.ColumnCompleted), "Sort column: pipeline, stage, job, result, completed")
	cmd.Flags().StringVar(&opts.Order, "order", string(store.Descending), "Sort order: asc, desc")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 25, "Maximum rows to show")
	return cmd
}

// NewHungCommand creates the hung command.
func NewHungCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hung AGENT...",
		Short: "List in-progress jobs on live agents that stopped reporting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := GetConfig(cmd.Context()), GetLogger(cmd.Context())
			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.FindHungJobs(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "no hung jobs")
				return nil
			}
			renderJobs(out, jobs)
			return nil
		},
	}
}

// NewActiveCommand creates the active command.
func NewActiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List jobs that are scheduled or in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := GetConfig(cmd.Context()), GetLogger(cmd.Context())
			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.ActiveJobs()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "no active jobs")
				return nil
			}
			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Pipeline", "Stage", "Job", "State", "Agent"})
			for _, j := range jobs {
				t.AppendRow(table.Row{
					j.ID,
					fmt.Sprintf("%s/%d", j.PipelineName, j.PipelineCounter),
					fmt.Sprintf("%s/%d", j.StageName, j.StageCounter),
					j.JobName, j.State, j.AgentUUID,
				})
			}
			t.Render()
			return nil
		},
	}
}

func renderJobs(w io.Writer, jobs []*models.JobInstance) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Pipeline", "Stage", "Job", "State", "Result", "Agent", "Scheduled"})
	for _, j := range jobs {
		id := j.Identifier
		t.AppendRow(table.Row{
			j.ID,
			fmt.Sprintf("%s/%d", id.PipelineName, id.PipelineCounter),
			fmt.Sprintf("%s/%d", id.StageName, id.StageCounter),
			id.JobName, j.State, j.Result, j.AgentUUID, formatTime(j.ScheduledAt),
		})
	}
	t.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
