package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakerfmt/internal/config"
	"github.com/MrWong99/speakerfmt/internal/transcript"
	"github.com/MrWong99/speakerfmt/internal/transcript/format"
)

func (a *app) processCmd() *cobra.Command {
	var (
		output   string
		asJSON   bool
		numbered bool
	)
	cmd := &cobra.Command{
		Use:   "process [file|-]",
		Short: "Format one transcript read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if numbered {
				a.cfg.Processing.OutputNumberedSpeakers = true
			}
			p, err := a.newProcessor()
			if err != nil {
				return err
			}

			raw, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			res := p.Process(cmd.Context(), raw)
			for _, w := range res.Warnings {
				slog.Warn(w)
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			if asJSON {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else if res.Success {
				if _, err := fmt.Fprintln(out, res.FormattedTranscript); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}

			if !res.Success {
				for _, e := range res.Errors {
					slog.Error("processing failed", "err", e)
				}
				return errReported
			}
			slog.Info("transcript processed",
				"speakers", len(res.Speakers),
				"matches", res.Stats.FinalMatches,
				"duration_ms", res.Stats.DurationMS,
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result to this file instead of stdout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result with statistics as JSON")
	cmd.Flags().BoolVar(&numbered, "numbered", false, "replace speaker names with Speaker 1, Speaker 2, ...")
	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var (
		outDir      string
		concurrency int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "batch <files...>",
		Short: "Format many transcripts into an output directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency > 0 {
				a.cfg.Processing.BatchConcurrency = concurrency
			}
			p, err := a.newProcessor()
			if err != nil {
				return err
			}

			results := p.Batch(cmd.Context(), args, outDir)
			sum := p.Summarize(results)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, sum); err != nil {
					return err
				}
			} else {
				for i, res := range results {
					if res.Success {
						fmt.Fprintf(out, "ok      %s -> %s (%d speakers)\n", args[i], transcript.OutputPath(args[i], outDir), len(res.Speakers))
						continue
					}
					fmt.Fprintf(out, "FAILED  %s: %v\n", args[i], res.Errors)
				}
				fmt.Fprintln(out, sum)
			}
			if sum.Failed > 0 {
				return fmt.Errorf("batch: %s", sum)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "output-dir", "", "directory receiving <name>"+transcript.OutputSuffix+" files")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "files processed at once (default from processing.batch_concurrency)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the batch summary as JSON")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var (
		level string
		fix   bool
	)
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check a transcript against the canonical format",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl := a.cfg.Processing.ValidationLevel
			if level != "" {
				var err error
				if lvl, err = format.ParseLevel(level); err != nil {
					return err
				}
			}

			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if fix {
				text = format.FixCommonIssues(text)
			}
			report := format.Validate(text, lvl, format.WithMaxSpeakers(a.cfg.Processing.MaxSpeakers))

			out := struct {
				Level  format.Level  `json:"level"`
				Report format.Report `json:"report"`
				Fixed  string        `json:"fixed_transcript,omitempty"`
			}{Level: lvl, Report: report}
			if fix {
				out.Fixed = text
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !report.IsValid {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "strict, moderate or lenient (default from processing.validation_level)")
	cmd.Flags().BoolVar(&fix, "fix", false, "repair common issues before validating and print the repaired text")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	var printDefaults bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Self-test every component and ping the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if printDefaults {
				_, err := out.Write(config.DefaultYAML())
				return err
			}

			p, err := a.newProcessor()
			if err != nil {
				return err
			}
			results := p.SelfTest(cmd.Context())

			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			slices.Sort(names)

			healthy := true
			for _, name := range names {
				status := "ok"
				switch {
				case results[name]:
				case name == transcript.ComponentResolver && p.Resolver() == nil:
					status = "disabled"
				default:
					status = "FAILED"
					healthy = false
				}
				fmt.Fprintf(out, "%-20s %s\n", name, status)
			}
			if !healthy {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printDefaults, "print-defaults", false, "print the built-in default configuration and exit")
	return cmd
}

// readInput reads the file named by args[0], or stdin when args is empty or
// names "-".
func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
