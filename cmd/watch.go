package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/kvcache-calc/kvcache/report"
)

var watchDebounce time.Duration // Quiet period before recomputing

// watchCmd recomputes whenever the scenario file changes
var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Recompute the hit rate every time a scenario file changes",
	Example: `  kvcache-calc watch --scenario scenario.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scenarioPath == "" {
			return errors.New("watch requires --scenario")
		}
		format, err := report.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := cmd.OutOrStdout()
		var mu sync.Mutex
		recompute := func() {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(w, "--- %s (%s)\n", scenarioPath, time.Now().Format(time.TimeOnly))
			in, est, err := resolveInputs(cmd)
			if err == nil {
				err = runCalculation(w, format, in, est)
			}
			// Keep watching: the next save may fix the file.
			if err != nil {
				logrus.Errorf("watch: %v", err)
				fmt.Fprintf(w, "error: %v\n", err)
			}
		}
		recompute()
		return watchFile(ctx, scenarioPath, watchDebounce, recompute)
	},
}

// watchFile calls onChange after every burst of writes to path, once the
// file has been quiet for debounce. It returns when ctx is done.
func watchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace the file instead of writing it, so watch the
	// directory and filter by name.
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	logrus.Infof("Watching %s", path)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.Warnf("watch: %v", err)
		}
	}
}

func init() {
	registerInputFlags(watchCmd.Flags())
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 100*time.Millisecond, "Quiet period after a change before recomputing")
}
