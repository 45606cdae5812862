package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/bus"
)

var eventsJSON bool

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail lifecycle events from the event bus",
	Long: `Subscribe to the configured event bus (events.bus: nats or redis) and
print lifecycle events published by running taskpilot processes.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Print raw JSON envelopes")
}

func runEvents(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	b, err := bus.New(cfg.Events)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("no event bus configured; set events.bus to nats or redis")
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, unsubscribe, err := b.Subscribe(ctx, cfg.Events.Subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", cfg.Events.Subject, err)
	}
	defer unsubscribe()

	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s (%s)...\n", cfg.Events.Subject, cfg.Events.Bus)
	for env := range ch {
		if eventsJSON {
			raw, err := json.Marshal(env)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(raw))
			continue
		}
		fmt.Fprintln(out, formatEnvelope(env))
	}
	return nil
}

// formatEnvelope renders an envelope as one line.
func formatEnvelope(env bus.Envelope) string {
	line := fmt.Sprintf("%s %-18s %s [%s]",
		env.Timestamp.Local().Format(time.TimeOnly), env.Type, env.TaskID, env.Status)
	if env.Iteration > 0 {
		line += fmt.Sprintf(" iteration %d", env.Iteration)
	}
	if env.Decision != "" {
		line += " " + env.Decision
	}
	if env.Message != "" {
		line += ": " + truncateText(env.Message, 80)
	}
	return line
}
