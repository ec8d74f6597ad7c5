package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dezso-dfield/ai-agent-representation/internal/agent"
	"github.com/dezso-dfield/ai-agent-representation/internal/config"
	"github.com/dezso-dfield/ai-agent-representation/internal/dummy"
	"github.com/dezso-dfield/ai-agent-representation/internal/journal"
	"github.com/dezso-dfield/ai-agent-representation/internal/metrics"
	"github.com/dezso-dfield/ai-agent-representation/internal/model"
	"github.com/dezso-dfield/ai-agent-representation/internal/openai"
)

const (
	defaultTask = "Summarize my notes and propose 5 action items for next week."
	// previewChars bounds what is printed of each output.
	previewChars = 800
)

func runCmd(flags *globalFlags) *cobra.Command {
	var knowledgeDir, personaFile, modelID string

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Plan and answer a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath, flags.envFile)
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				cfg.LogLevel = flags.logLevel
			}
			if cmd.Flags().Changed("knowledge-dir") {
				cfg.KnowledgeDir = knowledgeDir
			}
			if cmd.Flags().Changed("persona-file") {
				cfg.PersonaFile = personaFile
			}
			if cmd.Flags().Changed("model") {
				cfg.Model = modelID
			}

			task := defaultTask
			if len(args) > 0 {
				task = strings.Join(args, " ")
			}
			return runTask(cmd, cfg, task)
		},
	}

	cmd.Flags().StringVar(&knowledgeDir, "knowledge-dir", "", "directory of *.txt knowledge documents")
	cmd.Flags().StringVar(&personaFile, "persona-file", "", "system prompt override file")
	cmd.Flags().StringVar(&modelID, "model", "", "model identifier")
	return cmd
}

func runTask(cmd *cobra.Command, cfg config.Config, task string) error {
	logger := newLogger(cfg.LogLevel, cmd.ErrOrStderr())

	provider, err := newModelProvider(cfg)
	if err != nil {
		return fmt.Errorf("init model provider: %w", err)
	}

	opts := []agent.Option{
		agent.WithModel(cfg.Model),
		agent.WithKnowledgeDir(cfg.KnowledgeDir),
		agent.WithPersonaFile(cfg.PersonaFile),
		agent.WithLogger(logger),
	}

	if cfg.DBPath != "" {
		database, err := journal.OpenDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := journal.InitSchema(database); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
		var parentID *int64
		procID, err := journal.LogEvent(database, nil, journal.EventProcessStarted, map[string]any{
			"role":     "cli",
			"pid":      os.Getpid(),
			"provider": cfg.ModelProvider,
			"model":    cfg.Model,
		})
		if err != nil {
			logger.Warn("failed to log process.started", slog.String("error", err.Error()))
		} else {
			parentID = &procID
		}
		opts = append(opts, agent.WithObserver(journal.NewRecorder(database, parentID, logger)))
	}

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
		opts = append(opts, agent.WithObserver(m))
	}

	logger.Info("agent running", slog.String("model", cfg.Model), slog.String("provider", cfg.ModelProvider))
	res, runErr := agent.New(provider, opts...).Run(cmd.Context(), task)

	if m != nil {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics", slog.String("path", cfg.MetricsFile), slog.String("error", err.Error()))
		}
	}
	if runErr != nil {
		return runErr
	}

	printResult(cmd.OutOrStdout(), res)
	return nil
}

func newModelProvider(cfg config.Config) (model.Provider, error) {
	switch cfg.ModelProvider {
	case config.ProviderTogether:
		return openai.NewClient(cfg.APIKey, cfg.ChatCompletionsURL, cfg.HTTPTimeout()), nil
	case config.ProviderDummy:
		return dummy.NewProvider(cfg.DummyProviderScript)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}
}

func printResult(w io.Writer, res agent.Result) {
	fmt.Fprintf(w, "\n--- PLAN ---\n%s\n", preview(res.Plan, previewChars))
	fmt.Fprintf(w, "\n--- FINAL ---\n%s\n", preview(res.Final, previewChars))
}

func preview(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
