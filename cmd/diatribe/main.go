package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/noamfav/diatribe/internal/clients"
	"github.com/noamfav/diatribe/internal/config"
	"github.com/noamfav/diatribe/internal/llmedit"
	"github.com/noamfav/diatribe/internal/orchestrator"
	"github.com/noamfav/diatribe/internal/speakerid"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "diatribe",
		Short: "Transcript diarization improvement pipeline",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newProcessCmd(), newAnalyzeCmd(), newConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newProcessCmd() *cobra.Command {
	var (
		input          string
		output         string
		humanReadable  string
		maxSpeakers    int
		editBudget     float64
		windowSizeMs   uint64
		windowStrideMs uint64
		minTurnMs      uint64
		heuristicsOnly bool
		editorURL      string
		editorModel    string
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Improve speaker attribution on a diarized transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return fmt.Errorf("process: --input is required")
			}

			cfg, err := config.Load(configPath, nil)
			if err != nil {
				return err
			}

			cfg.Output.MachinePath = output
			cfg.Output.HumanPath = humanReadable
			cfg.Speaker.MaxSpeakers = maxSpeakers
			cfg.LLMEdit.EditBudgetPct = editBudget
			cfg.Window.SizeMs = windowSizeMs
			cfg.Window.StrideMs = windowStrideMs
			cfg.Reconcile.MinTurnDurationMs = minTurnMs
			cfg.HeuristicsOnly = heuristicsOnly
			if editorURL != "" {
				cfg.Services.Editor.URL = editorURL
			}
			if editorModel != "" {
				cfg.Services.Editor.Model = editorModel
			}
			if verbose {
				cfg.Pipeline.LogLevel = "debug"
			}

			var editor llmedit.Editor
			if !cfg.HeuristicsOnly {
				if cfg.Services.Editor.URL == "" {
					return fmt.Errorf("process: --editor-url is required unless --heuristics-only is set")
				}
				editor = clients.NewLLMEditor(cfg.Services.Editor.URL, cfg.Services.Editor.Model)
			}

			var identifier speakerid.Identifier
			if cfg.SpeakerID.Enabled && cfg.Services.SpeakerID.URL != "" {
				identifier = clients.NewSpeakerIdentifier(cfg.Services.SpeakerID.URL, cfg.Services.SpeakerID.Model)
			}

			pipeline := orchestrator.New(cfg, editor, identifier)
			out, err := pipeline.Run(cmd.Context(), input)
			if err != nil {
				return err
			}

			pipeline.Log.WithFields(logrus.Fields{
				"session":          out.SessionID,
				"tokens_relabeled": out.Machine.Metadata.TokensRelabeled,
				"total_tokens":     out.Machine.Metadata.TotalTokens,
				"diagnostics":      len(out.Diagnostics),
			}).Info("run complete")
			for _, d := range out.Diagnostics {
				pipeline.Log.Warn(d)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input transcript file (Deepgram JSON)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file for the machine-readable transcript (JSON)")
	cmd.Flags().StringVar(&humanReadable, "human-readable", "", "output file for the human-readable transcript")
	cmd.Flags().IntVar(&maxSpeakers, "max-speakers", 4, "maximum number of speakers")
	cmd.Flags().Float64Var(&editBudget, "edit-budget", 3.0, "edit budget as a percentage of editable tokens")
	cmd.Flags().Uint64Var(&windowSizeMs, "window-size-ms", 45000, "window size in milliseconds")
	cmd.Flags().Uint64Var(&windowStrideMs, "window-stride-ms", 15000, "window stride in milliseconds")
	cmd.Flags().Uint64Var(&minTurnMs, "min-turn-ms", 700, "minimum turn duration in milliseconds")
	cmd.Flags().BoolVar(&heuristicsOnly, "heuristics-only", false, "skip LLM processing, only run the deterministic heuristics")
	cmd.Flags().StringVar(&editorURL, "editor-url", "", "chat-completions endpoint for the local-edit LLM")
	cmd.Flags().StringVar(&editorModel, "editor-model", "", "model name to request from the local-edit endpoint")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		input   string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report token, turn and speaker counts after the heuristics, without calling the LLM or writing files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return fmt.Errorf("analyze: --input is required")
			}
			cfg, err := config.Load(configPath, nil)
			if err != nil {
				return err
			}
			cfg.HeuristicsOnly = true
			cfg.Output.MachinePath = ""
			cfg.Output.HumanPath = ""
			if verbose {
				cfg.Pipeline.LogLevel = "debug"
			}

			pipeline := orchestrator.New(cfg, nil, nil)
			out, err := pipeline.Run(cmd.Context(), input)
			if err != nil {
				return err
			}

			fmt.Printf("tokens=%d turns=%d speakers=%d relabeled_by_heuristics=%d\n",
				out.Machine.Metadata.TotalTokens,
				out.Machine.Metadata.TotalTurns,
				len(out.Machine.Speakers),
				out.Machine.Metadata.TokensRelabeled,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input transcript file (Deepgram JSON)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage diatribe configuration files"}

	var out string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every default filled in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("config init: --output is required")
			}
			return config.WriteDefault(out)
		},
	}
	initCmd.Flags().StringVarP(&out, "output", "o", "diatribe.yaml", "path to write the default config to")
	cmd.AddCommand(initCmd)

	return cmd
}
