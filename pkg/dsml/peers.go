// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"golang.org/x/time/rate"
)

// peerRegistry is C3: maps owner-names to peer connections, opening
// outbound TCP connections on demand (spec.md §4.3).
type peerRegistry struct {
	state *State
	cfg   RuntimeConfig

	mu       sync.Mutex
	byOwner  map[string]net.Conn
	limiters map[string]*rate.Limiter

	// dialBackoff (§3.1 SPEC_FULL.md) remembers owners whose most recent
	// dial failed, so a hot foreground retry loop doesn't redial on every
	// RegisterOwner call against an unreachable owner.
	dialBackoff *lru.Cache[string, time.Time]
}

func newPeerRegistry(s *State, cfg RuntimeConfig) *peerRegistry {
	size := cfg.DialBackoffCacheSize
	if size <= 0 {
		size = 1
	}
	cache, _ := lru.New[string, time.Time](size)
	return &peerRegistry{
		state:       s,
		cfg:         cfg,
		byOwner:     make(map[string]net.Conn),
		limiters:    make(map[string]*rate.Limiter),
		dialBackoff: cache,
	}
}

func (r *peerRegistry) limiterFor(owner string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[owner]
	if !ok {
		rps := r.cfg.ReconnectMaxPerSec
		if rps <= 0 {
			rps = 2
		}
		l = rate.NewLimiter(rate.Limit(rps), 1)
		r.limiters[owner] = l
	}
	return l
}

// dial opens the outbound TCP connection for State.RegisterOwner (spec.md §6
// `register_owner(name, ip, port)`), subject to the dial backoff and the
// per-owner rate limiter; it does not register the connection itself.
func (r *peerRegistry) dial(owner, ip string, port int) (net.Conn, error) {
	if last, ok := r.dialBackoff.Get(owner); ok && time.Since(last) < r.cfg.ReconnectMinDelay {
		return nil, fmt.Errorf("dsml: dial to owner %q backed off until %s", owner, last.Add(r.cfg.ReconnectMinDelay))
	}
	if !r.limiterFor(owner).Allow() {
		return nil, fmt.Errorf("dsml: dial to owner %q rate-limited", owner)
	}

	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, r.cfg.DialTimeout)
	if err != nil {
		r.dialBackoff.Add(owner, time.Now())
		return nil, err
	}
	return conn, nil
}

// register assigns conn as owner_conn on every variable owned by owner,
// replacing any previously registered connection for that owner (spec.md
// §4.3), and starts the inbound dispatcher goroutine for it.
func (r *peerRegistry) register(owner string, conn net.Conn) {
	r.mu.Lock()
	old, hadOld := r.byOwner[owner]
	r.byOwner[owner] = conn
	r.mu.Unlock()

	if hadOld {
		old.Close()
	}

	for _, v := range r.state.variablesOwnedBy(owner) {
		v.setOwnerConn(conn)
	}

	r.state.dispatcher.watch(owner, conn)
	cclog.Infof("[DSML/PEERS]> registered owner %q", owner)
}

// pruneConn removes owner's connection from the registry and clears it off
// every variable owner owns, but only if conn is still the one currently
// registered — a concurrent RegisterOwner may already have replaced it
// with a fresher connection, which a stale failure report must not
// clobber. This is the outbound-write half of spec.md §7 kind 3's "closed
// and removed from all lists", mirroring the prune-on-I/O-failure the
// inbound dispatcher and the subscription handler already do for reads.
func (r *peerRegistry) pruneConn(owner string, conn net.Conn) {
	r.mu.Lock()
	current, ok := r.byOwner[owner]
	if ok && current == conn {
		delete(r.byOwner, owner)
	}
	r.mu.Unlock()

	if !ok || current != conn {
		return
	}

	for _, v := range r.state.variablesOwnedBy(owner) {
		v.clearOwnerConnIfCurrent(conn)
	}
	conn.Close()
	cclog.Warnf("[DSML/PEERS]> pruned broken connection to owner %q", owner)
}

// connCount reports the number of currently registered peer connections,
// for the §3.5 housekeeping summary line.
func (r *peerRegistry) connCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOwner)
}

func (r *peerRegistry) closeAll() {
	r.mu.Lock()
	conns := r.byOwner
	r.byOwner = make(map[string]net.Conn)
	r.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
