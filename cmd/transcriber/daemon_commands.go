package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/daemonctl"
	"github.com/Kat4X/video-transcriber/internal/daemonrun"
	"github.com/Kat4X/video-transcriber/internal/jobs"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 10 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var serveLogLevel string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: serveLogLevel})
		},
	}
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Override logging.level for this run")

	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), c, exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath(),
				LogLevel:   startLogLevel,
			}, startWaitTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d) at %s\n", result.PID, c.BaseURL())
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cmd.Context(), c, ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, reachable, err := daemonctl.BuildStatusSnapshot(cmd.Context(), c, ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			renderDaemonStatus(out, status, reachable, c.BaseURL(), shouldColorize(out))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")

	return []*cobra.Command{serveCmd, startCmd, stopCmd, statusCmd}
}

func renderDaemonStatus(out io.Writer, status api.DaemonStatus, reachable bool, address string, colorize bool) {
	printSection(out, "Daemon", colorize)
	if reachable {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d) at %s", status.PID, address), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "Not running", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	if status.ReformatAvailable {
		fmt.Fprintln(out, renderStatusLine("Reformatting", statusOK, "Available", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Reformatting", statusWarn, "Disabled (set llm.api_key)", colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Dependencies", colorize)
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Models", colorize)
	fmt.Fprint(out, renderTable(
		[]string{"Model", "Size", "Installed", "Default", "Description"},
		buildModelRows(status.Models),
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintln(out)

	printSection(out, "Queue", colorize)
	workflow := status.Workflow
	if reachable {
		fmt.Fprintln(out, renderStatusLine("Active", statusInfo, fmt.Sprintf("%d of %d", workflow.Active, workflow.Limit), colorize))
	}
	rows := buildQueueStatusRows(workflow.Counts)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing", statusWarn, strings.Join(missing, ", ")+" (jobs will fail until installed)", colorize))
	}
	return lines
}

func buildModelRows(models []api.ModelStatus) [][]string {
	rows := make([][]string, 0, len(models))
	for _, model := range models {
		size := "-"
		if model.SizeMiB > 0 {
			size = humanize.IBytes(uint64(model.SizeMiB) << 20)
		}
		def := ""
		if model.Default {
			def = "*"
		}
		rows = append(rows, []string{model.ID, size, yesNo(model.Installed), def, model.Description})
	}
	return rows
}

// buildQueueStatusRows lists non-zero counts in pipeline order.
func buildQueueStatusRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, state := range jobs.AllStates() {
		count := counts[string(state)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{stateLabel(string(state)), fmt.Sprintf("%d", count)})
	}
	return rows
}
