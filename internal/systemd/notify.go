// Package systemd reports service readiness and liveness to the service
// manager through the sd_notify protocol.
package systemd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// HealthFunc reports whether the service is alive and a status line for
// systemctl status.
type HealthFunc func() (ok bool, status string)

// Notifier sends READY, STATUS, WATCHDOG and STOPPING messages. Every method
// is a no-op when the process was not started by systemd.
type Notifier struct {
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier creates a notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Ready reports that startup finished.
func (n *Notifier) Ready(status string) {
	n.send(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Status updates the free-form status line.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

// Stopping reports that shutdown began and stops the watchdog.
func (n *Notifier) Stopping() {
	n.StopWatchdog()
	n.send(daemon.SdNotifyStopping)
}

// StartWatchdog pings the watchdog at half of WatchdogSec while health
// reports ok. It returns false when the unit has no watchdog configured.
func (n *Notifier) StartWatchdog(health HealthFunc) bool {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Failed to read watchdog settings", "error", err)
		return false
	}
	if interval == 0 || health == nil {
		return false
	}
	return n.startWatchdog(interval/2, health)
}

func (n *Notifier) startWatchdog(period time.Duration, health HealthFunc) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.watchdog(ctx, period, health, n.done)

	n.logger.Info("Watchdog enabled", "period", period)
	return true
}

// StopWatchdog stops the watchdog loop if it is running.
func (n *Notifier) StopWatchdog() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (n *Notifier) watchdog(ctx context.Context, period time.Duration, health HealthFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, status := health()
		if !ok {
			// A missed ping lets systemd restart the service.
			n.logger.Warn("Skipping watchdog ping", "status", status)
			continue
		}
		state := daemon.SdNotifyWatchdog
		if status != last {
			state += "\nSTATUS=" + status
			last = status
		}
		n.send(state)
	}
}

func (n *Notifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("Failed to notify systemd", "error", err)
		return
	}
	if sent {
		n.logger.Debug("Notified systemd", "state", state)
	}
}
