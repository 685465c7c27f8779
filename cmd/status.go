package cmd

import (
	"os"

	"fleetmgr/internal/orchestrator"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Exit codes specific to `status`, per the CLI reference.
const (
	ExitStatusDegraded   = 9
	ExitStatusNotRunning = 10
)

var statusCmd = &cobra.Command{
	Use:   "status [config-path]",
	Short: "Report the live state of the gateway and every backend instance",
	Args:  cobra.MaximumNArgs(1),
	Long: `status reads pid files directly rather than any in-memory state,
so it reports accurately even when run from a fresh invocation that never
called start.`,
	RunE: runStatus,
}

func newStatusCmd() *cobra.Command {
	return statusCmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator(cmd, args)
	if err != nil {
		return CommandError{Code: ExitCodeError, Err: err}
	}

	report, err := o.Status(cmd.Context())
	if err != nil {
		return CommandError{Code: ExitCodeError, Err: err}
	}

	printStatusTable(report)

	switch statusVerdict(report) {
	case verdictNotRunning:
		return CommandError{Code: ExitStatusNotRunning, Err: errNotRunning}
	case verdictDegraded:
		return CommandError{Code: ExitStatusDegraded, Err: errDegraded(report)}
	default:
		return nil
	}
}

type verdict int

const (
	verdictHealthy verdict = iota
	verdictDegraded
	verdictNotRunning
)

// statusVerdict distinguishes "nothing is running at all" from "some of
// what's running isn't healthy" — spec.md gives those two states distinct
// exit codes (10 and 9) rather than folding them together.
func statusVerdict(report orchestrator.Report) verdict {
	anyRunning := report.Gateway.Running
	allHealthy := !report.Gateway.Running || report.Gateway.Healthy

	for _, inst := range report.Instances {
		if inst.Running {
			anyRunning = true
		}
		if inst.Running && !inst.Healthy {
			allHealthy = false
		}
	}

	if !anyRunning {
		return verdictNotRunning
	}
	if !allHealthy {
		return verdictDegraded
	}
	return verdictHealthy
}

var errNotRunning = &degradedError{}

func errDegraded(report orchestrator.Report) error {
	return &degradedError{report: report}
}

type degradedError struct{ report orchestrator.Report }

func (e *degradedError) Error() string {
	if len(e.report.Instances) == 0 {
		return "nothing is running"
	}
	return "one or more instances are not healthy"
}

func printStatusTable(report orchestrator.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("NAME"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("PID"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("PORT"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("STATE"),
	})

	t.AppendRow(statusRow("gateway", report.Gateway))
	t.AppendSeparator()
	for _, inst := range report.Instances {
		t.AppendRow(statusRow(inst.Name, inst))
	}

	t.Render()
}

func statusRow(name string, s orchestrator.InstanceStatus) table.Row {
	state := text.FgRed.Sprint("stopped")
	if s.Running && s.Healthy {
		state = text.FgGreen.Sprint("healthy")
	} else if s.Running {
		state = text.FgYellow.Sprint("running, not healthy")
	}

	pid := ""
	if s.Running {
		pid = text.Bold.Sprintf("%d", s.PID)
	}

	return table.Row{text.Bold.Sprint(name), pid, s.Port, state}
}
