// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"errors"
	"io"
	"net"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/uuid"

	"github.com/ClusterCockpit/cc-dsml/internal/wakeup"
	"github.com/ClusterCockpit/cc-dsml/internal/wire"
)

// subscriberEntry pairs a client connection with its membership id in the
// subscription handler's wakeup.Group, so a publish-time write failure can
// remove it from both the per-variable subscriber list and the watch-set
// in the order spec.md §5 requires (subscriber-list mutex before the
// watch-set mutex).
type subscriberEntry struct {
	conn net.Conn
	id   uint64
}

// subscriptions is C6: the set of accepted client sockets and the
// variable → subscriber-list map of spec.md §4.6.
type subscriptions struct {
	state *State
	group *wakeup.Group

	mu    sync.Mutex
	byVar map[string][]subscriberEntry
}

func newSubscriptions(s *State) *subscriptions {
	return &subscriptions{
		state: s,
		group: wakeup.New(),
		byVar: make(map[string][]subscriberEntry),
	}
}

// accept registers a freshly-accepted client connection and spawns its
// per-connection handler goroutine (the Go-idiomatic stand-in for a
// single poll()-driven thread, per SPEC_FULL.md §1.1).
func (h *subscriptions) accept(conn net.Conn) {
	id, ok := h.group.Add(conn)
	if !ok {
		conn.Close()
		return
	}
	connID := uuid.New()
	go h.serve(conn, id, connID.String())
}

func (h *subscriptions) serve(conn net.Conn, id uint64, logID string) {
	var subscribedTo []string
	defer func() {
		h.mu.Lock()
		for _, name := range subscribedTo {
			h.removeLocked(name, conn)
		}
		h.mu.Unlock()
		h.group.Remove(id)
	}()

	for {
		frame, err := wire.ReadClientFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				cclog.Debugf("[DSML/SUBS]> conn %s closed: %v", logID, err)
			}
			return
		}

		v := h.state.lookup(frame.Name)
		if v == nil {
			cclog.Warnf("[DSML/SUBS]> conn %s referenced unknown variable %q", logID, frame.Name)
			return
		}

		if !frame.IsUpdateRequest {
			h.mu.Lock()
			h.byVar[frame.Name] = append(h.byVar[frame.Name], subscriberEntry{conn: conn, id: id})
			h.mu.Unlock()
			subscribedTo = append(subscribedTo, frame.Name)
			h.state.metricsHandle().interestReceived()
			cclog.Debugf("[DSML/SUBS]> conn %s subscribed to %q", logID, frame.Name)
			continue
		}

		if !v.isOwner {
			cclog.Warnf("[DSML/SUBS]> conn %s sent update-request for non-owned %q", logID, frame.Name)
			continue
		}
		h.state.metricsHandle().updateRequestReceived()
		h.state.applyOwnedMutation(v, frame.Data)
	}
}

// removeLocked removes conn from the subscriber list of name. Caller holds h.mu.
func (h *subscriptions) removeLocked(name string, conn net.Conn) {
	list := h.byVar[name]
	for i, e := range list {
		if e.conn == conn {
			h.byVar[name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// publish fans data out to every current subscriber of name, iterating
// tail to head so mid-loop removals never shift pending indices (spec.md
// §4.6). A partial write is a failure; the subscriber is pruned from both
// the subscriber list and the watch-set, and its socket is closed.
func (h *subscriptions) publish(name string, data []byte) {
	h.mu.Lock()
	snapshot := append([]subscriberEntry(nil), h.byVar[name]...)
	h.mu.Unlock()

	var dead []subscriberEntry
	for i := len(snapshot) - 1; i >= 0; i-- {
		e := snapshot[i]
		if err := wire.WritePublish(e.conn, name, data); err != nil {
			dead = append(dead, e)
			continue
		}
		h.state.metricsHandle().publishSent()
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, e := range dead {
		h.removeLocked(name, e.conn)
	}
	h.mu.Unlock()
	for _, e := range dead {
		h.state.metricsHandle().socketPruned()
		h.group.Remove(e.id) // closes e.conn
	}
}

func (h *subscriptions) closeAll() {
	h.group.CloseAll()
}

// socketCount reports the number of currently accepted client sockets, for
// the §3.5 housekeeping summary line.
func (h *subscriptions) socketCount() int {
	return h.group.Len()
}
