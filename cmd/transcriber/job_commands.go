package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/client"
	"github.com/Kat4X/video-transcriber/internal/export"
)

const shortIDLength = 8

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newListCommand(ctx),
		newShowCommand(ctx),
		newDeleteCommand(ctx),
		newExportCommand(ctx),
	}
}

// jobFlags are the recognition options shared by submit and transcribe.
type jobFlags struct {
	name       string
	model      string
	language   string
	timestamps bool
	reformat   bool
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Display name for the job (defaults to the file name or video title)")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Recognition model (defaults to transcription.default_model)")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "Spoken language code, or auto")
	cmd.Flags().BoolVar(&f.timestamps, "timestamps", false, "Include timestamps in the Markdown transcript")
	cmd.Flags().BoolVar(&f.reformat, "reformat", false, "Restore punctuation and paragraphs with the configured LLM")
}

func (f *jobFlags) request() api.SubmitRequest {
	return api.SubmitRequest{
		Name:              strings.TrimSpace(f.name),
		Model:             strings.TrimSpace(f.model),
		Language:          strings.TrimSpace(f.language),
		IncludeTimestamps: f.timestamps,
		Reformat:          f.reformat,
	}
}

func isRemoteSource(target string) bool {
	lower := strings.ToLower(strings.TrimSpace(target))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func resolveLocalFile(target string) (string, error) {
	absPath, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file does not exist: %s", absPath)
		}
		return "", fmt.Errorf("inspect file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", absPath)
	}
	return absPath, nil
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var upload bool
	var follow bool

	cmd := &cobra.Command{
		Use:   "submit <file|url>",
		Short: "Queue a media file or video URL for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.request()
			target := strings.TrimSpace(args[0])
			var localPath string
			if isRemoteSource(target) {
				req.URL = target
			} else {
				path, err := resolveLocalFile(target)
				if err != nil {
					return err
				}
				localPath = path
			}

			return ctx.withClient(func(c *client.Client) error {
				var (
					resp api.SubmitResponse
					err  error
				)
				switch {
				case localPath != "" && upload:
					resp, err = c.Upload(cmd.Context(), localPath, req)
				case localPath != "":
					req.Path = localPath
					resp, err = c.Submit(cmd.Context(), req)
				default:
					resp, err = c.Submit(cmd.Context(), req)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued job %s (%s)\n", resp.ID, submissionLabel(req, localPath))
				if !follow {
					return nil
				}
				job, err := followJob(cmd, c, resp.ID)
				if err != nil {
					return err
				}
				return reportOutcome(cmd, job)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&upload, "upload", false, "Stream the file to the daemon instead of sharing its path")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the job's progress until it finishes")
	return cmd
}

func submissionLabel(req api.SubmitRequest, localPath string) string {
	switch {
	case req.Name != "":
		return req.Name
	case localPath != "":
		return filepath.Base(localPath)
	default:
		return req.URL
	}
}

func followJob(cmd *cobra.Command, c *client.Client, id string) (api.Job, error) {
	view := newProgressView(cmd.OutOrStdout(), shortID(id))
	job, err := c.Follow(cmd.Context(), id, view.Update)
	view.Finish()
	return job, err
}

// reportOutcome prints where a finished job ended up and turns a failed job
// into a command error.
func reportOutcome(cmd *cobra.Command, job api.Job) error {
	if job.Status == "failed" {
		if job.Error != nil {
			return fmt.Errorf("job %s failed (%s): %s", job.ID, job.Error.Kind, job.Error.Message)
		}
		return fmt.Errorf("job %s failed", job.ID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed; fetch it with `transcriber export %s`\n", job.ID, job.ID)
	return nil
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List transcription jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				summaries, err := c.List(cmd.Context(), statuses, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobListResponse{Jobs: summaries})
				}
				out := cmd.OutOrStdout()
				if len(summaries) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Source", "Status", "Progress", "Duration", "Updated"},
					buildJobRows(summaries, time.Now()),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show jobs in these states (repeatable or comma separated)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func buildJobRows(summaries []api.JobSummary, now time.Time) [][]string {
	rows := make([][]string, 0, len(summaries))
	for _, summary := range summaries {
		status := stateLabel(summary.Status)
		if summary.ErrorKind != "" {
			status = fmt.Sprintf("%s (%s)", status, summary.ErrorKind)
		}
		rows = append(rows, []string{
			summary.ID,
			summary.SourceName,
			status,
			fmt.Sprintf("%d%%", summary.Progress),
			formatDuration(summary.DurationSeconds),
			relativeTime(summary.UpdatedAt, now),
		})
	}
	return rows
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var transcript bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				job, err := c.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				printJob(cmd, job, transcript)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job record as JSON")
	cmd.Flags().BoolVarP(&transcript, "transcript", "t", false, "Print the transcript text of a completed job")
	return cmd
}

func printJob(cmd *cobra.Command, job api.Job, transcript bool) {
	out := cmd.OutOrStdout()
	now := time.Now()
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "%-18s %s\n", label+":", value)
		}
	}

	line("ID", job.ID)
	line("Status", fmt.Sprintf("%s (%d%%)", stateLabel(job.Status), job.Progress))
	line("Message", job.Message)
	line("Source", job.Source.Name)
	line("Source kind", job.Source.Kind)
	line("Path", job.Source.Path)
	line("URL", job.Source.URL)
	line("Model", job.Options.Model)
	line("Language", job.Options.Language)
	line("Timestamps", yesNo(job.Options.IncludeTimestamps))
	line("Reformat", yesNo(job.Options.Reformat))
	line("Created", relativeTime(job.CreatedAt, now))
	line("Updated", relativeTime(job.UpdatedAt, now))

	if job.Error != nil {
		line("Error kind", job.Error.Kind)
		line("Error", job.Error.Message)
	}
	if job.Result == nil {
		return
	}
	result := job.Result
	line("Duration", formatDuration(result.DurationSeconds))
	line("Detected language", result.DetectedLanguage)
	line("Segments", fmt.Sprintf("%d", len(result.Segments)))
	line("Words", humanize.Comma(int64(len(strings.Fields(result.Text)))))
	line("Reformatted", yesNo(result.Reformatted))
	line("Reformat error", result.ReformatError)
	if transcript {
		fmt.Fprintln(out)
		fmt.Fprintln(out, strings.TrimSpace(result.Text))
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm", "cancel"},
		Short:   "Cancel an unfinished job or remove a finished one",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch resp.Status {
				case "deleted":
					fmt.Fprintf(out, "Deleted job %s\n", resp.ID)
				case "cancelled":
					fmt.Fprintf(out, "Cancelled job %s\n", resp.ID)
				default:
					fmt.Fprintf(out, "Cancelling job %s; it stops at the next safe point\n", resp.ID)
				}
				return nil
			})
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Download a completed job's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return ctx.withClient(func(c *client.Client) error {
				doc, err := c.Download(cmd.Context(), args[0], string(parsed))
				if err != nil {
					var apiErr *client.APIError
					if errors.As(err, &apiErr) && apiErr.Kind == "not_ready" {
						return fmt.Errorf("job %s has not completed yet", args[0])
					}
					return err
				}
				target := strings.TrimSpace(output)
				if target == "" || target == "-" {
					_, err := cmd.OutOrStdout().Write(doc.Body)
					return err
				}
				if info, err := os.Stat(target); err == nil && info.IsDir() {
					name := doc.Filename
					if name == "" {
						name = args[0] + "." + string(parsed)
					}
					target = filepath.Join(target, name)
				}
				if err := os.WriteFile(target, doc.Body, 0o644); err != nil {
					return fmt.Errorf("write transcript: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", target, humanize.Bytes(uint64(len(doc.Body))))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Transcript format: md, srt or txt")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (defaults to stdout)")
	return cmd
}

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return export.Clock(seconds)
}

func relativeTime(value string, now time.Time) string {
	if value == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return humanize.RelTime(parsed, now, "ago", "from now")
}
