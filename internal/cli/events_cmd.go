package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sbenjam1n/gridrun/internal/events"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Step event stream",
}

var eventsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the length and unacknowledged entries of the step stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := connectRedis()
		if err != nil {
			return err
		}
		defer rdb.Close()

		length, pending, err := events.New(rdb).Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("events status: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Stream Status:\n")
		fmt.Fprintf(out, "  %s: %d entries, %d pending for %s\n", events.StreamSteps, length, pending, events.GroupWatchers)
		return nil
	},
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print step events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := connectRedis()
		if err != nil {
			return err
		}
		defer rdb.Close()

		ctx := cmd.Context()
		pub := events.New(rdb)
		if err := pub.EnsureStream(ctx); err != nil {
			return err
		}

		host, _ := os.Hostname()
		consumer := fmt.Sprintf("%s-%d", host, os.Getpid())
		out := cmd.OutOrStdout()
		for ctx.Err() == nil {
			ev, err := pub.Next(ctx, consumer, 5*time.Second)
			if errors.Is(err, events.ErrNoEvents) {
				continue
			}
			if err != nil {
				return err
			}
			switch ev.Kind {
			case events.KindRunStarted:
				fmt.Fprintf(out, "%s started %s (%s, %d steps)\n", ev.RunID, ev.Experiment, ev.Mode, ev.Total)
			case events.KindStep:
				fmt.Fprintf(out, "%s [Step %d/%d] %s %s: %s\n", ev.RunID, ev.Ordinal, ev.Total, ev.Phase, ev.Target, ev.Outcome)
			case events.KindRunFinished:
				status := "succeeded"
				if ev.Error != "" {
					status = "failed: " + ev.Error
				}
				fmt.Fprintf(out, "%s finished %s\n", ev.RunID, status)
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.AddCommand(eventsStatusCmd)
	eventsCmd.AddCommand(eventsWatchCmd)
}
