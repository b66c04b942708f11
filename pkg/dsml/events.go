// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"encoding/binary"
	"fmt"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/nats-io/nats.go"
)

// eventPublisher is the §3.3 SPEC_FULL.md change-event sideband: a
// fire-and-forget NATS publish on every applied mutation, purely for
// external observability. Grounded directly on pkg/nats/client.go's
// reconnect/error-handler wiring.
type eventPublisher struct {
	self string
	nc   *nats.Conn
}

func newEventPublisher(cfg RuntimeConfig, self string) *eventPublisher {
	if !cfg.NatsEventsEnabled || cfg.NatsAddress == "" {
		return nil
	}

	nc, err := nats.Connect(cfg.NatsAddress,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				cclog.Warnf("[DSML/EVENTS]> NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			cclog.Infof("[DSML/EVENTS]> NATS reconnected to %s", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			cclog.Warnf("[DSML/EVENTS]> NATS error: %v", err)
		}),
	)
	if err != nil {
		cclog.Warnf("[DSML/EVENTS]> NATS connect to %q failed, sideband disabled: %v", cfg.NatsAddress, err)
		return nil
	}
	cclog.Infof("[DSML/EVENTS]> NATS event sideband connected to %s", cfg.NatsAddress)
	return &eventPublisher{self: self, nc: nc}
}

// publish emits a tiny diagnostic event; it never returns an error to the
// caller and never affects get/set semantics (SPEC_FULL.md §3.3).
func (p *eventPublisher) publish(variable string, at time.Time) {
	if p == nil {
		return
	}
	subject := fmt.Sprintf("dsml.events.%s.%s", p.self, variable)
	var payload [8]byte
	binary.BigEndian.PutUint64(payload[:], uint64(at.UnixNano()))
	if err := p.nc.Publish(subject, payload[:]); err != nil {
		cclog.Warnf("[DSML/EVENTS]> publish to %q failed: %v", subject, err)
	}
}

func (p *eventPublisher) close() {
	if p == nil {
		return
	}
	p.nc.Close()
}

// emitEvent is the State-level hook called after every applied mutation:
// a local Set, an applied update-request, or a publish received from a
// remote owner.
func (s *State) emitEvent(variable string, at time.Time) {
	s.events.publish(variable, at)
}
