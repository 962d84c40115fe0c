package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Promptonauts/configrepo/pkg/configrepo"
	"github.com/Promptonauts/configrepo/pkg/contract"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type fileReport struct {
	File     string             `json:"file"`
	Jobs     int                `json:"jobs"`
	Error    string             `json:"error,omitempty"`
	Findings []contract.Finding `json:"findings,omitempty"`
}

func (r fileReport) ok() bool {
	return r.Error == "" && len(r.Findings) == 0
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate job definition files",
		Long: `Parse and validate one or more job definition files.

Every problem in a file is reported in a single pass, each with the
location of the offending element.`,
		Example: `  configrepo validate build.gocd.yaml
  configrepo validate --format json repos/*.gocd.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger(cmd.Context())

			reports := make([]fileReport, 0, len(args))
			invalid := 0
			for _, path := range args {
				rep := validateFile(path)
				if !rep.ok() {
					invalid++
				}
				logger.Debug("validated file",
					slog.String("file", path),
					slog.Int("findings", len(rep.Findings)))
				reports = append(reports, rep)
			}

			if err := renderReports(cmd.OutOrStdout(), format, reports); err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d file(s) invalid", invalid, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func loadDocument(path string) (*configrepo.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return configrepo.ParseDocument(path, data)
}

func validateFile(path string) fileReport {
	rep := fileReport{File: path}
	doc, err := loadDocument(path)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.Jobs = len(doc.Jobs)
	rep.Findings = doc.Validate().Findings()
	return rep
}

func renderReports(w io.Writer, format string, reports []fileReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "text", "":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	for _, rep := range reports {
		switch {
		case rep.Error != "":
			fmt.Fprintf(w, "%s: %s\n", rep.File, rep.Error)
		case len(rep.Findings) == 0:
			fmt.Fprintf(w, "%s: ok (%d jobs)\n", rep.File, rep.Jobs)
		default:
			fmt.Fprintf(w, "%s: %d problem(s)\n", rep.File, len(rep.Findings))
			t := table.NewWriter()
			t.SetOutputMirror(w)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Location", "Kind", "Message"})
			for _, f := range rep.Findings {
				t.AppendRow(table.Row{f.Location, f.Kind, f.Message})
			}
			t.Render()
		}
	}
	return nil
}
