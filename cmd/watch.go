// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"rowbase/cli/internal/auth"
	"rowbase/cli/internal/logging"
	"rowbase/cli/internal/sink"
	"rowbase/cli/pkg/realtime"
	"rowbase/cli/pkg/realtime/wsconn"
)

var (
	watchEvents   string
	watchSink     bool
	watchCount    int
	watchAttempts int
)

// watchCmd streams row changes for one or more tables.
var watchCmd = &cobra.Command{
	Use:   "watch <table>...",
	Short: "Stream live row changes",
	Long: `The watch command subscribes to row changes on one or more tables and prints
each change as it arrives. The connection is re-established automatically and
every subscription is restored after a reconnect.

With --sink, changes are also written to the Postgres table configured with
'rowbase sink connect'.

Examples:
  rowbase watch orders
  rowbase watch orders payments --events insert,update
  rowbase watch orders --sink --count 100`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := realtime.ParseEvents(watchEvents)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := newSession(ctx, true)
		if err != nil {
			return err
		}

		var mirror *sink.Sink
		if watchSink {
			if mirror, err = openSink(ctx, s); err != nil {
				return err
			}
			defer mirror.Close()
		}

		settings := realtime.DefaultSettings()
		settings.Logger = s.log
		if cmd.Flags().Changed("max-attempts") {
			settings.MaxAttempts = watchAttempts
		}
		mgr := realtime.New(s.realtimeURL(), s.key.Value, wsconn.NewDialerWithDefaults(), settings)
		defer mgr.Close()

		status := newStatusLine(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
		defer status.Stop()

		var (
			received atomic.Int64
			limitHit = make(chan struct{})
			limitOne sync.Once
			mirrored = make(chan realtime.ChangeEvent, 256)
			sinkDone = make(chan int, 1)
		)

		mgr.OnStatus(func(st realtime.Status) {
			status.Set(statusText(st, len(args)))
		})
		mgr.OnSubscriptionError(func(f realtime.SubscriptionFailure) {
			status.Println(pterm.Warning.Sprintf("subscription to %s (%s) failed: %s", f.Table, f.Events, logging.Mask(f.Err.Error())))
		})
		mgr.OnChange(func(ev realtime.ChangeEvent) {
			status.Println(formatChange(ev))
			if mirror != nil {
				select {
				case mirrored <- ev:
				default:
					s.log.Warn("sink is falling behind, dropping event", s.log.Args("table", ev.Table))
				}
			}
			if n := received.Add(1); watchCount > 0 && n >= int64(watchCount) {
				limitOne.Do(func() { close(limitHit) })
			}
		})

		for _, table := range args {
			if _, err := mgr.Subscribe(table, events); err != nil {
				return err
			}
		}

		sinkCtx, cancelSink := context.WithCancel(context.Background())
		defer cancelSink()
		if mirror != nil {
			go func() {
				sinkDone <- mirror.Consume(sinkCtx, mirrored, nil)
			}()
		}

		if err := mgr.Start(); err != nil {
			return err
		}

		var fatal error
		select {
		case <-ctx.Done():
		case <-limitHit:
		case <-mgr.Done():
			fatal = mgr.Err()
		}
		_ = mgr.Close()
		status.Stop()

		stored := 0
		if mirror != nil {
			close(mirrored)
			select {
			case stored = <-sinkDone:
			case <-time.After(10 * time.Second):
				cancelSink()
				stored = <-sinkDone
			}
		}

		if fatal != nil {
			logging.PresentConnectionError(fatal)
			return fatal
		}

		summary := fmt.Sprintf("%d change(s) received", received.Load())
		if mirror != nil {
			summary += fmt.Sprintf(", %d written to %s", stored, mirror.Table())
		}
		pterm.Info.Println(summary)
		return nil
	},
}

func openSink(ctx context.Context, s *session) (*sink.Sink, error) {
	c, err := auth.SinkDSN()
	if err != nil {
		return nil, err
	}
	mirror, err := sink.Open(ctx, sink.Options{DSN: c.Value, Table: s.cfg.Sink.Table, Logger: s.log})
	if err != nil {
		return nil, errors.New(logging.PresentError("open sink", err))
	}
	return mirror, nil
}

func statusText(st realtime.Status, tables int) string {
	switch st.State {
	case realtime.Ready:
		return pterm.Green("● ") + fmt.Sprintf("live, watching %d table(s). Ctrl+C to stop", tables)
	case realtime.Connecting:
		if st.Attempt > 1 {
			return pterm.Yellow("○ ") + fmt.Sprintf("reconnecting (attempt %d)", st.Attempt)
		}
		return pterm.Yellow("○ ") + "connecting"
	case realtime.Authenticating:
		return pterm.Yellow("○ ") + "authenticating"
	default:
		if st.Err != nil {
			return pterm.Red("● ") + "disconnected: " + logging.Mask(st.Err.Error())
		}
		return pterm.Red("● ") + "disconnected"
	}
}

func formatChange(ev realtime.ChangeEvent) string {
	var tag string
	switch ev.Type {
	case realtime.Insert:
		tag = pterm.Green("INSERT")
	case realtime.Update:
		tag = pterm.Yellow("UPDATE")
	case realtime.Delete:
		tag = pterm.Red("DELETE")
	default:
		tag = string(ev.Type)
	}
	line := fmt.Sprintf("%s %s %s", pterm.Gray(time.Now().Format("15:04:05")), tag, pterm.Bold.Sprint(ev.Table))
	if ev.Sequenced {
		line += pterm.Gray(fmt.Sprintf(" #%d", ev.Sequence))
	}
	if len(ev.Record) > 0 {
		line += " " + string(ev.Record)
	}
	return line
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchEvents, "events", "e", "*", "Event types to watch: insert, update, delete (comma-separated) or *")
	watchCmd.Flags().BoolVar(&watchSink, "sink", false, "Also write changes to the configured Postgres sink")
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "Exit after this many changes (0 = run until interrupted)")
	watchCmd.Flags().IntVar(&watchAttempts, "max-attempts", 10, "Consecutive failed connection attempts before giving up (0 = retry forever)")
}
