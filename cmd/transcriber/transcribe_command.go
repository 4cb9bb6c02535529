package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/daemonrun"
	"github.com/Kat4X/video-transcriber/internal/export"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/workflow"
)

// oneShotEngineOptions lets tests swap the collaborators of in-process runs.
var oneShotEngineOptions = func(*config.Config) []daemonrun.EngineOption { return nil }

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var flags jobFlags
	var outputDir string
	var withSRT bool

	cmd := &cobra.Command{
		Use:   "transcribe <file|url>",
		Short: "Transcribe one file or URL in-process and write the transcript",
		Long: "Runs a single job without the daemon, using a scratch job store that is\n" +
			"removed afterwards. The Markdown transcript is written to the output\n" +
			"directory as <name>.md, plus <name>.srt with --srt.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			req := flags.request()
			source := jobs.Source{Name: req.Name}
			target := strings.TrimSpace(args[0])
			if isRemoteSource(target) {
				source.Kind = jobs.SourceRemoteURL
				source.URL = target
			} else {
				path, err := resolveLocalFile(target)
				if err != nil {
					return err
				}
				source.Kind = jobs.SourceLocalFile
				source.Path = path
			}

			dir, err := resolveOutputDir(outputDir)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			job, err := runOneShot(runCtx, cmd, cfg, workflow.Request{
				Source: source,
				Options: jobs.Options{
					Model:             req.Model,
					Language:          req.Language,
					IncludeTimestamps: req.IncludeTimestamps,
					Reformat:          req.Reformat,
				},
			})
			if err != nil {
				return err
			}
			if job.State == jobs.StateFailed {
				if job.Error != nil {
					return fmt.Errorf("transcription failed (%s): %s", job.Error.Kind, job.Error.Message)
				}
				return errors.New("transcription failed")
			}
			if job.Result != nil && job.Result.ReformatError != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: reformatting skipped: %s\n", job.Result.ReformatError)
			}

			formats := []export.Format{export.FormatMarkdown}
			if withSRT {
				formats = append(formats, export.FormatSRT)
			}
			for _, format := range formats {
				doc, err := export.Render(format, job)
				if errors.Is(err, export.ErrNoSegments) {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: no timed segments; subtitles not written")
					continue
				}
				if err != nil {
					return err
				}
				path := filepath.Join(dir, doc.Filename)
				if err := os.WriteFile(path, []byte(doc.Body), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", format, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", path, humanize.Bytes(uint64(len(doc.Body))))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory for the transcript files")
	cmd.Flags().BoolVar(&withSRT, "srt", false, "Also write SubRip subtitles")
	return cmd
}

func resolveOutputDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return expanded, nil
}

// runOneShot runs req through a private engine whose store lives in a scratch
// directory under the data dir, so a running daemon's jobs are never touched.
func runOneShot(ctx context.Context, cmd *cobra.Command, cfg *config.Config, req workflow.Request) (*jobs.Job, error) {
	scratch, err := os.MkdirTemp(cfg.Paths.DataDir, "oneshot-")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	scoped := *cfg
	scoped.Paths.DataDir = scratch
	scoped.Paths.APIBind = ""

	logger, err := logging.New(logging.Options{
		Level:       scoped.Logging.Level,
		Format:      scoped.Logging.Format,
		OutputPaths: []string{filepath.Join(scoped.Paths.LogDir, "transcriber-oneshot.log")},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	engine, err := daemonrun.NewEngine(&scoped, logger, oneShotEngineOptions(&scoped)...)
	if err != nil {
		return nil, err
	}
	defer engine.Close()
	if err := engine.Workflow.Start(ctx); err != nil {
		return nil, err
	}

	id, err := engine.Workflow.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	view := newProgressView(cmd.OutOrStdout(), req.Source.DisplayName())
	job, err := engine.Workflow.Wait(ctx, id, func(event progress.Event) {
		view.Update(api.FromEvent(event))
	})
	view.Finish()
	return job, err
}
