package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SecretDeveloper/sqew/internal/queue"
)

func messageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Message commands",
	}
	cmd.AddCommand(
		messageEnqueueCmd(),
		messagePollCmd(),
		messageAckCmd(),
		messageNackCmd(),
		messageRemoveCmd(),
		messagePeekCmd(),
		messagePeekIDCmd(),
	)
	return cmd
}

// printMessage prints the stable one-line record format shared by poll,
// peek, peek-id, and queue peek.
func printMessage(m queue.Message) {
	fmt.Printf("[id=%d] attempts=%d available_at=%d payload=%s\n",
		m.ID, m.Attempts, m.AvailableAt, m.Payload)
}

// readPayloadFile parses the file at path first as a JSON array and, on
// failure, as NDJSON (one JSON value per non-empty line).
func readPayloadFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", path, err)
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(content, &arr); err == nil {
		payloads := make([]string, len(arr))
		for i, v := range arr {
			payloads[i] = string(v)
		}
		return payloads, nil
	}

	var payloads []string
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !json.Valid([]byte(line)) {
			return nil, fmt.Errorf("invalid JSON at line %d of %q", i+1, path)
		}
		payloads = append(payloads, line)
	}
	return payloads, nil
}

func messageEnqueueCmd() *cobra.Command {
	var (
		payload        string
		file           string
		delayMS        int64
		priority       int
		idempotencyKey string
		ttlMS          int64
	)
	cmd := &cobra.Command{
		Use:   "enqueue <queue>",
		Short: "Enqueue a JSON message. Use --payload or --file (NDJSON or JSON array).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			opts := queue.EnqueueOpts{
				DelayMS:        delayMS,
				Priority:       priority,
				IdempotencyKey: idempotencyKey,
				TTLMS:          ttlMS,
			}

			var payloads []string
			if file != "" {
				payloads, err = readPayloadFile(file)
				if err != nil {
					return err
				}
			}
			if payload != "" {
				payloads = append(payloads, payload)
			}
			if len(payloads) == 0 {
				return fmt.Errorf("provide --payload or --file")
			}

			for _, p := range payloads {
				if _, err := queue.EnqueueWith(cmd.Context(), db, args[0], p, opts); err != nil {
					return err
				}
			}
			fmt.Printf("Enqueued %d message(s) into '%s'\n", len(payloads), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", `Inline JSON payload (e.g. '{"k":"v"}')`)
	cmd.Flags().StringVar(&file, "file", "", "Read payload(s) from file (NDJSON or JSON array)")
	cmd.Flags().Int64Var(&delayMS, "delay-ms", 0, "Delay visibility in milliseconds")
	cmd.Flags().IntVar(&priority, "priority", 0, "Delivery priority (higher first)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Deduplication key, unique per queue")
	cmd.Flags().Int64Var(&ttlMS, "ttl-ms", 0, "Discard the message this many ms after enqueue (0 = never)")
	return cmd
}

func messagePollCmd() *cobra.Command {
	var (
		batch        int
		visibilityMS int64
	)
	cmd := &cobra.Command{
		Use:   "poll <queue>",
		Short: "Poll (lease) up to N messages; updates visibility via available_at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			msgs, err := queue.Poll(cmd.Context(), db, args[0], batch, visibilityMS)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Printf("No messages available in '%s'\n", args[0])
				return nil
			}
			for _, m := range msgs {
				printMessage(m)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 1, "Batch size")
	cmd.Flags().Int64Var(&visibilityMS, "visibility-ms", 30_000, "Visibility timeout in ms")
	return cmd
}

func messageAckCmd() *cobra.Command {
	var ids []int64
	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge (delete) messages by IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := queue.Ack(cmd.Context(), db, ids)
			if err != nil {
				return err
			}
			fmt.Printf("Acked %d message(s)\n", n)
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "Comma-separated message IDs, e.g. 1,2,3")
	return cmd
}

func messageNackCmd() *cobra.Command {
	var (
		ids     []int64
		delayMS int64
	)
	cmd := &cobra.Command{
		Use:   "nack",
		Short: "Negative-acknowledge: increment attempts and requeue after delay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			requeued, dropped, err := queue.Nack(cmd.Context(), db, ids, delayMS)
			if err != nil {
				return err
			}
			fmt.Printf("Nacked: requeued=%d dropped=%d\n", requeued, dropped)
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "Comma-separated message IDs, e.g. 1,2,3")
	cmd.Flags().Int64Var(&delayMS, "delay-ms", 1000, "Delay before message becomes visible again")
	return cmd
}

func messageRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a message by ID (hard delete)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid message id %q", args[0])
			}
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			removed, err := queue.RemoveMessage(cmd.Context(), db, id)
			if err != nil {
				return err
			}
			if removed {
				fmt.Printf("Removed message %d\n", id)
			} else {
				fmt.Printf("Message %d not found\n", id)
			}
			return nil
		},
	}
}

func messagePeekCmd() *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "peek <queue>",
		Short: "Peek messages in a queue (no leasing)",
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
			if len(msgs) == 0 {
				fmt.Printf("No messages available in '%s'\n", args[0])
				return nil
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

func messagePeekIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peek-id <id>",
		Short: "Peek a single message by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid message id %q", args[0])
			}
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := queue.GetMessage(cmd.Context(), db, id)
			if err != nil {
				return err
			}
			printMessage(m)
			return nil
		},
	}
}
