// Command ssnake runs an autonomous coding agent against a workspace
// directory until it reports the task complete.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/martinemde/ssnake/agentloop"
	"github.com/martinemde/ssnake/config"
	"github.com/martinemde/ssnake/llm"
	"github.com/martinemde/ssnake/logger"
	"github.com/martinemde/ssnake/sandbox"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "ssnake <user_prompt>",
		Short: "Run an autonomous coding agent in a workspace directory",
		Long: `Run an autonomous coding agent in a workspace directory.

The agent lists, reads and writes files and runs scripts inside the
configured workspace until it calls task_complete, the model stops
answering, or the iteration budget runs out.

Examples:
  ssnake "fix the bug in calculator.py"
  ssnake --verbose "add tests for the parser"
  ssnake -c ./agent.yaml "explain how rendering works"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Argument errors print usage; failures past this point do not.
			cmd.SilenceUsage = true
			return run(cmd.Context(), configPath, verbose, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: ./config.yaml or next to the executable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print tool arguments, result previews and token usage")

	return cmd
}

func run(parent context.Context, configPath string, verbose bool, prompt string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	if err := logger.Init(level, os.Stderr); err != nil {
		return err
	}
	log := logger.Log

	adapter, err := llm.NewGollmAdapter(cfg.Provider, cfg.APIKey,
		llm.WithModel(cfg.Model),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTokenCounter(llm.TiktokenCounter(llm.DefaultEncoding)),
	)
	if err != nil {
		return fmt.Errorf("create %s adapter: %w", cfg.Provider, err)
	}
	client := llm.NewClient(
		llm.WithProvider(cfg.Provider, adapter),
		llm.WithMiddleware(llm.LoggingMiddleware(log)),
	)
	defer client.Close()

	sb := sandbox.New(cfg.SandboxConfig())
	dispatcher := agentloop.NewDispatcher(agentloop.NewCoreRegistry(sb.Config()), sb, cfg.Workspace,
		agentloop.WithOutput(out),
		agentloop.WithVerbose(verbose),
		agentloop.WithLogger(log),
	)

	sessCfg := cfg.SessionConfig()
	sessCfg.Verbose = verbose
	sessCfg.Output = out
	sessCfg.Logger = log

	session := agentloop.NewSession(cfg.Profile(), client, dispatcher, &sessCfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range session.Events() {
			log.Debug("session event", "kind", ev.Kind, "data", ev.Data)
		}
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting agent",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"workspace", cfg.Workspace,
		"config", cfg.Path,
	)

	res, err := session.Run(ctx, prompt)
	session.Close()
	<-done
	if err != nil {
		return err
	}

	if res.Cause != nil {
		log.Warn("agent stopped early", "reason", res.Reason, slog.Any("error", res.Cause))
	}
	return nil
}
