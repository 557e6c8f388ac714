package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/akmatori/incidentd/internal/escalation"
	"github.com/akmatori/incidentd/internal/queue"
)

func newQueuesCommand() *cobra.Command {
	var deadLetters int64
	cmd := &cobra.Command{
		Use:   "queues",
		Short: "Print queue depths, pending escalations and recent dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, err := queue.NewClient(ctx, cfg.RedisURL, log)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			return printQueues(ctx, cmd.OutOrStdout(), queue.NewSet(client), escalation.NewDueQueue(client.Redis()), deadLetters)
		},
	}
	cmd.Flags().Int64VarP(&deadLetters, "dead-letters", "n", 5, "number of recent dead letters to show per queue")
	return cmd
}

type depthReader interface {
	Depths(ctx context.Context) ([]queue.Depth, error)
	DeadLetters(ctx context.Context, n int64) (map[string][]string, error)
}

type dueReader interface {
	Len(ctx context.Context) (int64, error)
	Pending(ctx context.Context) ([]escalation.DueEntry, error)
}

func printQueues(ctx context.Context, out io.Writer, queues depthReader, due dueReader, n int64) error {
	depths, err := queues.Depths(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue depths: %w", err)
	}
	pending, err := due.Len(ctx)
	if err != nil {
		return fmt.Errorf("failed to read escalation queue: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tLENGTH")
	for _, d := range depths {
		fmt.Fprintf(tw, "%s\t%d\n", d.Queue, d.Len)
	}
	fmt.Fprintf(tw, "%s\t%d\n", escalation.PendingKey, pending)
	if err := tw.Flush(); err != nil {
		return err
	}

	if pending > 0 {
		entries, err := due.Pending(ctx)
		if err != nil {
			return fmt.Errorf("failed to read escalation queue: %w", err)
		}
		fmt.Fprintln(out, "\nPending escalations:")
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  INCIDENT\tPRIMARY\tSECONDARY\tDUE")
		for _, e := range entries {
			if e.DecodeErr != nil {
				fmt.Fprintf(tw, "  (undecodable)\t\t\t%s\n", e.Member)
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.IncidentID, e.PrimaryEmail, e.SecondaryEmail, e.EscalationAt.UTC().Format(time.RFC3339))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if n <= 0 {
		return nil
	}
	letters, err := queues.DeadLetters(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to read dead letters: %w", err)
	}
	for _, name := range []string{queue.ErrorAlerts, queue.IncidentDeadLetter, queue.NotificationDeadLetter} {
		items := letters[name]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s (latest %d):\n", name, len(items))
		for _, item := range items {
			fmt.Fprintf(out, "  %s\n", item)
		}
	}
	return nil
}
