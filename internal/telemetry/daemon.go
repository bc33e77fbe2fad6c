package telemetry

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"time"
)

type Runner interface {
	Run(ctx context.Context) error
}

type DaemonOpt struct {
	RestartOnFailure bool
	RestartDelay     time.Duration
}

func runOnce(ctx context.Context, r Runner) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("telemetry panicked: %v", p)
		}
	}()
	return r.Run(ctx)
}

// Daemon supervises r until ctx is cancelled. Without RestartOnFailure the first
// failure is returned and the subsystem stays down.
func Daemon(ctx context.Context, r Runner, opt DaemonOpt) error {
	restarts := 0
	for {
		err := runOnce(ctx, r)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			log.Infoln("telemetry exited")
			return nil
		}
		if !opt.RestartOnFailure {
			log.Errorln("telemetry halted:", err)
			return err
		}

		restarts++
		log.Errorf("telemetry failed (restart %d in %v): %v", restarts, opt.RestartDelay, err)
		timer := time.NewTimer(opt.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
