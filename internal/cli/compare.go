package cli

import (
	"fmt"
	"sort"

	"github.com/Promptonauts/configrepo/pkg/contract"
	"github.com/spf13/cobra"
)

// NewCompareCommand creates the compare command.
func NewCompareCommand() *cobra.Command {
	var exitCode bool
	cmd := &cobra.Command{
		Use:   "compare OLD NEW",
		Short: "Report whether two job definition files would trigger a reload",
		Long: `Compare two job definition files the way the reconciler does.

Reordering jobs, resources, environment variables, tabs, artifacts or
properties does not count as a change. Reordering tasks does.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldDoc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			newDoc, err := loadDocument(args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if oldDoc.Equal(newDoc) {
				fmt.Fprintln(out, "unchanged")
				return nil
			}

			added, removed, changed := diffJobs(oldDoc.Jobs, newDoc.Jobs)
			fmt.Fprintln(out, "changed")
			for _, name := range added {
				fmt.Fprintf(out, "  + %s\n", name)
			}
			for _, name := range removed {
				fmt.Fprintf(out, "  - %s\n", name)
			}
			for _, name := range changed {
				fmt.Fprintf(out, "  ~ %s\n", name)
			}
			fmt.Fprintf(out, "%d of %d job(s) unchanged\n", unchangedJobs(oldDoc.Jobs, newDoc.Jobs), len(newDoc.Jobs))
			if exitCode {
				return fmt.Errorf("definitions differ")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with an error when the files differ")
	return cmd
}

// diffJobs pairs jobs by name. Jobs sharing a name are compared as a group.
func diffJobs(oldJobs, newJobs []*contract.Job) (added, removed, changed []string) {
	group := func(jobs []*contract.Job) map[string][]*contract.Job {
		m := make(map[string][]*contract.Job)
		for _, j := range jobs {
			m[j.Name] = append(m[j.Name], j)
		}
		return m
	}
	before, after := group(oldJobs), group(newJobs)

	for name, jobs := range after {
		prev, ok := before[name]
		switch {
		case !ok:
			added = append(added, name)
		case !contract.JobsEqual(prev, jobs):
			changed = append(changed, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	return added, removed, changed
}

func unchangedJobs(oldJobs, newJobs []*contract.Job) int {
	index := contract.NewJobIndex()
	for _, j := range oldJobs {
		index.Add(j)
	}
	n := 0
	for _, j := range newJobs {
		if index.Contains(j) {
			n++
		}
	}
	return n
}
