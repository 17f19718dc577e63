package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inbleach/internal/gmail"
	"github.com/teemow/inbleach/internal/logging"
)

// defaultSweepDays is the look-back window of a sweep
const defaultSweepDays = 30

// bulkUnsubscriber is the part of gmail.Client a sweep needs
type bulkUnsubscriber interface {
	ListMessages(ctx context.Context, since time.Time) ([]gmail.MessageRef, error)
	BulkUnsubscribe(ctx context.Context, ids []string) *gmail.UnsubscribeResult
}

func newSweepCmd() *cobra.Command {
	var (
		days int
		ids  string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Unsubscribe from marketing email received in the last days",
		Long: `List the messages received in the last --days days and follow the
unsubscribe link of every promotional one. With --ids only the given messages
are processed. Uses the credentials saved by 'inbleach login'.

The partitioned result is printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1, got %d", days)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			log := logging.NewSlogAdapter(logger)
			client, save, err := storedClient(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to create Gmail client: %w", err)
			}
			defer func() {
				if err := save(); err != nil {
					log.Warn("failed to save refreshed credentials", logging.Err(err))
				}
			}()

			return runSweep(ctx, client, time.Now().AddDate(0, 0, -days), parseCommaSeparatedList(ids), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&days, "days", defaultSweepDays, "Number of days to look back")
	cmd.Flags().StringVar(&ids, "ids", "", "Comma separated message IDs to process instead of listing")
	return cmd
}

// runSweep unsubscribes from ids, or from every message since the given
// time when ids is empty, and writes the result to out
func runSweep(ctx context.Context, client bulkUnsubscriber, since time.Time, ids []string, out io.Writer) error {
	if len(ids) == 0 {
		refs, err := client.ListMessages(ctx, since)
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		for _, ref := range refs {
			ids = append(ids, ref.ID)
		}
	}

	result := client.BulkUnsubscribe(ctx, ids)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
