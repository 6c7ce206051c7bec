package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SecretDeveloper/sqew/internal/queue"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue management commands",
	}
	cmd.AddCommand(
		queueListCmd(),
		queueAddCmd(),
		queueRemoveCmd(),
		queueShowCmd(),
		queuePurgeCmd(),
		queuePeekCmd(),
		queueCompactCmd(),
		queueRequeueDLQCmd(),
	)
	return cmd
}

func queueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			queues, err := queue.ListQueues(cmd.Context(), db)
			if err != nil {
				return err
			}
			if len(queues) == 0 {
				fmt.Println("No queues found")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMAX_ATTEMPTS\tVISIBILITY_MS\tDLQ_ID")
			for _, q := range queues {
				dlq := "-"
				if q.DLQID != nil {
					dlq = fmt.Sprint(*q.DLQID)
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", q.ID, q.Name, q.MaxAttempts, q.VisibilityMS, dlq)
			}
			return w.Flush()
		},
	}
}

func queueAddCmd() *cobra.Command {
	var (
		maxAttempts  int
		dlq          string
		visibilityMS int64
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			q, err := queue.CreateQueueWith(cmd.Context(), db, args[0], maxAttempts, queue.CreateQueueOpts{
				DLQ:          dlq,
				VisibilityMS: visibilityMS,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created queue '%s' with ID %d\n", q.Name, q.ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 5, "Maximum delivery attempts before drop")
	cmd.Flags().StringVar(&dlq, "dlq", "", "Name of an existing queue to use as dead-letter target")
	cmd.Flags().Int64Var(&visibilityMS, "visibility-ms", 0, "Default lease duration in ms (0 = built-in default)")
	return cmd
}

func queueRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a queue and all its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			removed, err := queue.DeleteQueue(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("queue '%s' not found", args[0])
			}
			fmt.Printf("Removed queue '%s'\n", args[0])
			return nil
		},
	}
}

func queueShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show queue details and stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			q, err := queue.ShowQueue(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			stats, err := queue.QueueStats(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Queue '%s' (ID=%d)\n", q.Name, q.ID)
			fmt.Printf("  max_attempts: %d\n", q.MaxAttempts)
			fmt.Printf("  visibility_ms: %d\n", q.VisibilityMS)
			if q.DLQID != nil {
				fmt.Printf("  dlq_id: %d\n", *q.DLQID)
			}
			fmt.Printf("Stats: ready=%d leased=%d dlq=%d\n", stats.Ready, stats.Leased, stats.DLQ)
			return nil
		},
	}
}

func queuePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <name>",
		Short: "Purge (delete) all messages in the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			deleted, err := queue.Purge(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d messages from queue '%s'\n", deleted, args[0])
			return nil
		},
	}
}

func queuePeekCmd() *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "peek <name>",
		Short: "Peek messages without leasing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			msgs, err := queue.Peek(cmd.Context(), db, args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printMessage(m)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 1, "Number of messages to peek")
	return cmd
}

func queueCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Compact the database (VACUUM)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := queue.Compact(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Println("Compacted database (VACUUM)")
			return nil
		},
	}
}

func queueRequeueDLQCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue-dlq <name>",
		Short: "Move all messages from the queue's DLQ back to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			moved, err := queue.RequeueDLQ(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Requeued %d message(s) into '%s'\n", moved, args[0])
			return nil
		},
	}
}
