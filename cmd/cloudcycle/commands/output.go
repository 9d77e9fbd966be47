package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/cloudcycle/cloudcycle/pkg/api"
	"github.com/cloudcycle/cloudcycle/pkg/engine"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes the run summary.
func printReport(w io.Writer, report *engine.Report, asJSON bool) error {
	if asJSON {
		return writeJSON(w, reportView{Report: report, ExitCode: report.ExitCode()})
	}

	fmt.Fprintf(w, "Run %s: %s (%s)\n", report.RunID, report.State, report.Duration().Round(time.Millisecond))
	if report.AbortReason != "" {
		fmt.Fprintf(w, "Aborted: %s\n", report.AbortReason)
	}
	if report.TraceID != "" {
		fmt.Fprintf(w, "Trace: %s\n", report.TraceID)
	}

	fmt.Fprintln(w, "\nSteps:")
	printResults(w, report.Results)
	fmt.Fprintln(w, "\nTeardown:")
	printResults(w, report.Teardown)

	fmt.Fprintln(w, "\nResources:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tSTATE")
	for _, d := range report.Resources {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Kind, d.ID, d.State)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nExit code: %d\n", report.ExitCode())
	return nil
}

// reportView adds the fields the JSON report derives.
type reportView struct {
	*engine.Report
	ExitCode int `json:"exit_code"`
}

func printResults(w io.Writer, results []engine.OperationResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		target := "-"
		if r.Resource != nil {
			target = string(r.Resource.Kind) + "/" + r.Resource.ID
		}
		detail := r.Detail
		if r.Err != nil {
			detail = r.Error()
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", r.Step, status, target, detail)
	}
	_ = tw.Flush()
}

func printRuns(w io.Writer, runs []*engine.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tPROVIDER\tREGION\tSTARTED\tEXIT")
	for _, r := range runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprint(*r.ExitCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.State, r.Provider, r.Region, r.StartedAt.Local().Format(time.DateTime), exit)
	}
	return tw.Flush()
}

func printRunDetail(w io.Writer, d api.RunDetail) error {
	fmt.Fprintf(w, "Run %s: %s\n", d.Run.ID, d.Run.State)
	fmt.Fprintf(w, "Provider: %s  Region: %s\n", d.Run.Provider, d.Run.Region)
	if d.Run.AbortReason != "" {
		fmt.Fprintf(w, "Aborted: %s\n", d.Run.AbortReason)
	}
	if d.Run.TraceID != "" {
		fmt.Fprintf(w, "Trace: %s\n", d.Run.TraceID)
	}

	fmt.Fprintln(w, "\nResources:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range d.Resources {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.Kind, r.ID, r.State)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nResults:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range d.Results {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		detail := r.Detail
		if r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s/%s\t%s\n", r.Seq, r.Step, status, r.ResourceKind, r.ResourceID, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nEvents: %d\n", len(d.Events))
	return nil
}
