package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/miriamsimone/collab-canvas-sub000/internal/lock"
	"github.com/miriamsimone/collab-canvas-sub000/internal/printer"
	"github.com/miriamsimone/collab-canvas-sub000/internal/reconcile"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

var (
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the shapes on a board",
	Long: `List every durable shape on a board with its position, size, z-order,
and current advisory lock holder.

The listing is the merged snapshot an observer would render: shapes are
ordered by z-index and lock overlays are resolved against the lock hash.

Use --json for machine-readable output.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	opts, board, err := resolveTarget()
	if err != nil {
		return err
	}

	store, err := canvas.NewClient(opts, board)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		return printer.ErrorWithContext(
			"Cannot reach Redis",
			"The board state lives in Redis and the CLI could not connect.",
			map[string]string{"board": board},
			[]string{"Check that Redis is running and REDIS_URL / --redis points at it"},
		)
	}

	shapes, err := store.ListShapes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list shapes: %w", err)
	}

	locks, err := lock.NewManager(opts, board)
	if err != nil {
		return err
	}
	defer locks.Close()

	lockMap, err := locks.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read locks: %w", err)
	}

	// Merge the lock overlay the same way the reconciler would for an
	// observer who holds no locks.
	engine := reconcile.NewEngine("", 0)
	engine.SetDurable(shapes)
	engine.SetLocks(lockMap)
	merged := engine.View()

	if listJSON {
		payload, err := json.MarshalIndent(merged, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(payload))
		return nil
	}

	if len(merged) == 0 {
		printer.Info("No shapes on board %q\n", board)
		return nil
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].ZIndex < merged[j].ZIndex })

	printer.Info("Board %q: %d shapes\n\n", board, len(merged))
	for _, s := range merged {
		printer.Shape(s)
	}
	return nil
}
