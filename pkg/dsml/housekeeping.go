// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"context"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
)

// housekeeping is the §3.5 SPEC_FULL.md periodic stats logger, grounded on
// internal/taskmanager's gocron.Scheduler/NewJob pattern. It logs a single
// summary line per interval: variable count, subscriber-socket count, and
// peer-connection count. Purely diagnostic — never touches get/set
// semantics.
type housekeeping struct {
	scheduler gocron.Scheduler
}

func newHousekeeping(s *State, interval time.Duration) *housekeeping {
	if interval <= 0 {
		return nil
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		cclog.Warnf("[DSML/HOUSEKEEPING]> scheduler init failed, stats logging disabled: %v", err)
		return nil
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.logStats()
		}),
	)
	if err != nil {
		cclog.Warnf("[DSML/HOUSEKEEPING]> job registration failed, stats logging disabled: %v", err)
		return nil
	}

	scheduler.Start()
	return &housekeeping{scheduler: scheduler}
}

func (h *housekeeping) stop() {
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.scheduler.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// logStats emits the one-line summary; it is called only by the scheduled
// job, so no line is logged before the first interval has elapsed.
func (s *State) logStats() {
	s.mu.Lock()
	numVars := len(s.vars)
	s.mu.Unlock()

	cclog.Debugf("[DSML/HOUSEKEEPING]> self=%s variables=%d subscriberSockets=%d peerConns=%d",
		s.self, numVars, s.subs.socketCount(), s.peers.connCount())
}
