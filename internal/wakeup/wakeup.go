// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wakeup implements the cancellable-registry replacement for the
// source library's wakeup-pipe protocol (spec.md §4.8, redesigned per §9).
//
// Each background goroutine family (the inbound dispatcher's owner
// connections, the subscription handler's client connections) keeps one
// Group. Registering or deregistering a connection is a single mutex
// section instead of a spin-write-to-a-pipe handshake, and tearing the
// whole group down is one call that closes every member and is safe to
// race against concurrent Add/Remove calls.
package wakeup

import (
	"io"
	"sync"
)

// Group tracks a dynamic set of closer members (typically net.Conn) so that
// they can all be closed together, exactly once, from any goroutine —
// without the polling goroutines that own them ever observing a member
// added or removed mid-operation.
type Group struct {
	mu      sync.Mutex
	members map[uint64]io.Closer
	nextID  uint64
	closed  bool
	done    chan struct{}
}

// New returns a ready-to-use, empty Group.
func New() *Group {
	return &Group{
		members: make(map[uint64]io.Closer),
		done:    make(chan struct{}),
	}
}

// Add registers a member. It returns the id to later pass to Remove and
// false if the group has already been closed — in which case the caller
// must close member itself, since it was never admitted.
func (g *Group) Add(member io.Closer) (id uint64, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0, false
	}
	g.nextID++
	id = g.nextID
	g.members[id] = member
	return id, true
}

// Remove deregisters and closes the member with the given id, if present.
// Removing an id twice, or one already removed by CloseAll, is a no-op.
func (g *Group) Remove(id uint64) {
	g.mu.Lock()
	member, ok := g.members[id]
	if ok {
		delete(g.members, id)
	}
	g.mu.Unlock()

	if ok {
		member.Close()
	}
}

// Len reports the number of currently-registered members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Done returns a channel that is closed once CloseAll has run. Background
// goroutines that block in a read select on this alongside their I/O to
// notice shutdown without polling a flag.
func (g *Group) Done() <-chan struct{} {
	return g.done
}

// CloseAll closes every current member and marks the group closed; it is
// idempotent and safe to call concurrently with Add/Remove. Members closed
// here cause any goroutine blocked reading from them to unblock with an
// I/O error, which is how the corresponding background goroutine notices
// it should exit — no separate "running" flag needs to be polled.
func (g *Group) CloseAll() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	members := g.members
	g.members = make(map[uint64]io.Closer)
	close(g.done)
	g.mu.Unlock()

	for _, member := range members {
		member.Close()
	}
}
