package cmd

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arakabCL/TheNotch/internal/logger"
	"github.com/arakabCL/TheNotch/internal/notify"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync poller and reminder stager until interrupted",
	Long: `Run as a long-lived daemon: poll the calendar on the sync interval and
check reminder stages on the notification interval. SIGINT or SIGTERM stops
both loops cleanly.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	tokens, err := newTokenManager()
	if err != nil {
		return err
	}

	if !tokens.IsSignedIn() {
		return fmt.Errorf("authentication required. Run 'notchd auth' first")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncer := newSynchronizer(tokens)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		syncer.Run(ctx, time.Duration(cfg.Sync.IntervalSeconds)*time.Second)
	}()

	if cfg.Notifications.Enabled {
		stager := notify.NewStager(syncer, notify.NewOsaScriptSink(),
			notify.StagesFromLeadTimes(cfg.Notifications.LeadTimes))

		wg.Add(1)
		go func() {
			defer wg.Done()
			stager.Run(ctx, time.Duration(cfg.Notifications.PollSeconds)*time.Second)
		}()
	}

	logger.Info("watch started",
		"sync_interval_s", cfg.Sync.IntervalSeconds,
		"notify_poll_s", cfg.Notifications.PollSeconds,
		"notifications", cfg.Notifications.Enabled)

	<-ctx.Done()
	wg.Wait()

	logger.Info("watch stopped")
	return nil
}
