package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quarry/internal/app"
	"quarry/internal/catalog"
	"quarry/internal/controller"
	"quarry/internal/errors"

	"github.com/spf13/cobra"
)

// searchCmd ranks the catalog against a query.
func searchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the catalog",
		Long:  `Rank every cataloged object against the query and print the best matches.`,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			query := strings.Join(args, " ")
			res, err := a.Controller.Search(ctx, controller.SourcePane, query)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), "Results", res, limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results (0 for all)")
	return cmd
}

// actionsCmd shows the actions offered for the best match of a query.
func actionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions <query>",
		Short: "List the actions for the best match",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			if _, err := a.Controller.Search(ctx, controller.SourcePane, strings.Join(args, " ")); err != nil {
				return err
			}
			item := a.Controller.Pane(controller.SourcePane).Leaf()
			if item == nil {
				return fmt.Errorf("nothing matches %q", strings.Join(args, " "))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", titleText("Item:"), item.Name())
			printResult(out, "Actions", a.Controller.Pane(controller.ActionPane).Result, 0)
			return nil
		},
	}
	return cmd
}

// runCmd selects an item, an action and optionally an object by query,
// then activates.
func runCmd() *cobra.Command {
	var (
		dryRun  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <item> [action] [object]",
		Short: "Run an action on the best match",
		Long: `Select the best match for <item>, the best action for [action] (or the
default action), and for actions that need one the best object for [object].
Then run it. Rescans requested this way are carried out by a running daemon;
use the rescan command to refresh sources directly.`,
		Example: `  quarry run report "move to" archive
  quarry run downloads open`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)
			if dryRun {
				a.Organizer.SetDryRun(true)
			}
			return activate(ctx, cmd, a, args, timeout)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report file operations without performing them")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for background actions")
	return cmd
}

func activate(ctx context.Context, cmd *cobra.Command, a *app.App, args []string, timeout time.Duration) error {
	ctrl := a.Controller
	out := cmd.OutOrStdout()

	if _, err := ctrl.Search(ctx, controller.SourcePane, args[0]); err != nil {
		return err
	}
	if len(args) > 1 {
		if _, err := ctrl.Search(ctx, controller.ActionPane, args[1]); err != nil {
			return err
		}
	}
	action := ctrl.Pane(controller.ActionPane).Action()
	if action == nil {
		return errors.NewActivationError("no action matches", "", errors.NoAction, nil)
	}
	if ctrl.Mode() == controller.ThreePane {
		if len(args) < 3 {
			return errors.NewActivationError("an object is required", action.Name(), errors.NoObject, nil)
		}
		if _, err := ctrl.Search(ctx, controller.ObjectPane, args[2]); err != nil {
			return err
		}
	}

	item := ctrl.Pane(controller.SourcePane).Leaf()
	line := fmt.Sprintf("%s %s", action.Name(), item.Name())
	if iobj := ctrl.Pane(controller.ObjectPane).Leaf(); iobj != nil && ctrl.Mode() == controller.ThreePane {
		line += " -> " + iobj.Name()
	}
	fmt.Fprintln(out, dimText(line))

	var w *waiter
	if catalog.IsAsync(action) {
		w = newWaiter()
		ctrl.AddObserver(w)
	}
	before := ctrl.Pane(controller.SourcePane).Source
	if err := ctrl.Activate(ctx); err != nil {
		return err
	}
	if w != nil {
		wctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := w.wait(wctx); err != nil {
			return err
		}
	}

	if src := ctrl.Pane(controller.SourcePane).Source; src != nil && (before == nil || src.Key() != before.Key()) {
		printResult(out, src.Name(), ctrl.Pane(controller.SourcePane).Result, 0)
		return nil
	}
	fmt.Fprintln(out, successText("Done"))
	return nil
}

// waiter blocks until an asynchronous activation reports back.
type waiter struct {
	controller.NopObserver
	done chan error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan error, 1)}
}

func (w *waiter) OnLaunched(catalog.Action, catalog.Leaf, catalog.Leaf) { w.signal(nil) }
func (w *waiter) OnError(err error)                                     { w.signal(err) }

func (w *waiter) OnSourceChanged(id controller.PaneID, _ catalog.Source) {
	if id == controller.SourcePane {
		w.signal(nil)
	}
}

func (w *waiter) signal(err error) {
	select {
	case w.done <- err:
	default:
	}
}

func (w *waiter) wait(ctx context.Context) error {
	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("action did not finish: %w", ctx.Err())
	}
}
