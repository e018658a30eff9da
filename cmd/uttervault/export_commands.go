package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"uttervault/internal/api"
	"uttervault/internal/catalog"
	"uttervault/internal/export"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Build a ZIP archive of utterances",
	}
	exportCmd.AddCommand(newExportIDsCommand(ctx))
	exportCmd.AddCommand(newExportFilterCommand(ctx))
	return exportCmd
}

func newExportIDsCommand(ctx *commandContext) *cobra.Command {
	var fromFile string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ids [id...]",
		Short: "Export the given utterance ids in the order given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := append([]string(nil), args...)
			if fromFile != "" {
				fileIDs, err := readIDs(cmd.InOrStdin(), fromFile)
				if err != nil {
					return err
				}
				ids = append(ids, fileIDs...)
			}
			return runExport(cmd, ctx, jsonOutput, func(p *export.Pipeline) (export.Outcome, error) {
				return p.ExportByIDs(commandCtx(cmd), ids)
			})
		},
	}
	cmd.Flags().StringVarP(&fromFile, "from-file", "f", "", "Read ids from a file, one per line ('-' for stdin)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	return cmd
}

func newExportFilterCommand(ctx *commandContext) *cobra.Command {
	var language string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Export every utterance matching the filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, ctx, jsonOutput, func(p *export.Pipeline) (export.Outcome, error) {
				return p.ExportByFilter(commandCtx(cmd), catalog.Filter{Language: language})
			})
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Case-insensitive substring of the language tag")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	return cmd
}

func runExport(cmd *cobra.Command, ctx *commandContext, jsonOutput bool, run func(*export.Pipeline) (export.Outcome, error)) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	lock := flock.New(cfg.ExportLockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire export lock: %w", err)
	}
	if !locked {
		return reportOutcome(cmd, jsonOutput, export.Outcome{Status: export.StatusBusy, Message: export.BusyMessage}, nil)
	}
	defer lock.Unlock() //nolint:errcheck

	signalCtx, cancel := signal.NotifyContext(commandCtx(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(signalCtx)

	stack, err := ctx.exportStack(cmd)
	if err != nil {
		return err
	}
	defer ctx.close() //nolint:errcheck

	outcome, runErr := run(stack.Pipeline)
	return reportOutcome(cmd, jsonOutput, outcome, runErr)
}

func reportOutcome(cmd *cobra.Command, jsonOutput bool, outcome export.Outcome, runErr error) error {
	if jsonOutput {
		if err := writeJSON(cmd, api.FromOutcome(outcome)); err != nil {
			return err
		}
		return runErr
	}

	out := cmd.OutOrStdout()
	switch outcome.Status {
	case export.StatusCompleted:
		fmt.Fprintf(out, "Wrote %s\n", outcome.Location)
		stats := outcome.Stats
		fmt.Fprintf(out, "%d utterances, %d with audio", stats.Records, stats.AudioWritten)
		if stats.Transcoded > 0 {
			fmt.Fprintf(out, " (%d converted to wav)", stats.Transcoded)
		}
		if missing := stats.Missing + stats.Failed; missing > 0 {
			fmt.Fprintf(out, ", %d without audio", missing)
		}
		if stats.Duplicates > 0 {
			fmt.Fprintf(out, ", %d duplicate ids skipped", stats.Duplicates)
		}
		fmt.Fprintln(out)
	case export.StatusSkipped:
		fmt.Fprintln(out, "No utterance ids given; nothing to export.")
	case export.StatusBusy, export.StatusNoMatches:
		fmt.Fprintln(out, outcome.Message)
	}
	if runErr != nil {
		if outcome.Message != "" {
			return errors.New(outcome.Message)
		}
		return runErr
	}
	return nil
}

func readIDs(stdin io.Reader, path string) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open id file: %w", err)
		}
		defer file.Close()
		r = file
	}
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	return ids, nil
}
