// Command taskscope is the reference CLI: it wires a cobra root command
// to the layered configuration of internal/config, dials the
// instrumented process through internal/transport, and runs the
// composition root of internal/engine behind the Bubble Tea renderer of
// internal/ui.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskscope/taskscope/internal/config"
	"github.com/taskscope/taskscope/internal/engine"
	"github.com/taskscope/taskscope/internal/transport"
	"github.com/taskscope/taskscope/internal/ui"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "taskscope",
	Short: "Interactive inspector for an instrumented asynchronous program",
	Long: `taskscope connects to an instrumented process over gRPC, tracks
its tasks, resources, and async-ops in memory, flags common
async-scheduling mistakes as they happen, and renders the live picture
in a terminal UI.

Key bindings:
  tab        Switch between tasks and resources
  j/k        Move the selection cursor
  enter      Open the detail view for the selected row
  esc        Close the detail view
  s          Cycle the sort column
  r          Reverse the sort direction
  /          Filter by name or type
  p          Pause or resume the update stream
  ?          Toggle help
  q/Ctrl+C   Quit`,
	RunE: runConsole,
}

func init() {
	config.BindFlags(rootCmd.Flags())
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a YAML configuration file")
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	client, err := transport.Dial(cfg.Target)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.Target, err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng := engine.New(client, cfg, log)

	engineErr := make(chan error, 1)
	go func() { engineErr <- eng.Run(ctx) }()

	program := tea.NewProgram(ui.New(eng), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		cancel()
		<-engineErr
		return fmt.Errorf("running renderer: %w", err)
	}

	cancel()
	<-engineErr
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
