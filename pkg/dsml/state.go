// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dsml implements the distributed shared memory library: a set of
// named, typed variables shared across a fixed-size group of cooperating
// processes, each variable owned by exactly one process and replicated to
// the rest over plain TCP.
package dsml

import (
	"net"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/prometheus/client_golang/prometheus"
)

// State is the library's root handle: one per participating process,
// constructed from a manifest and this process's own name (spec.md §4.1).
type State struct {
	self string
	cfg  RuntimeConfig

	mu   sync.Mutex
	vars map[string]*Variable

	listener net.Listener
	wg       sync.WaitGroup

	subs       *subscriptions
	dispatcher *dispatcher
	peers      *peerRegistry
	metrics    *metricsCollector
	events     *eventPublisher
	hk         *housekeeping

	closeOnce sync.Once
}

// Option configures optional sidebands at construction time.
type Option func(*options)

type options struct {
	cfg      RuntimeConfig
	cfgSet   bool
	registry prometheus.Registerer
}

// WithRuntimeConfig overrides the package-default Keys for this State.
func WithRuntimeConfig(cfg RuntimeConfig) Option {
	return func(o *options) { o.cfg = cfg; o.cfgSet = true }
}

// WithMetricsRegistry enables the §3.4 Prometheus sideband against reg. A
// nil registry (the default, if this option is never passed) disables it.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// New loads the manifest at manifestPath and brings up this process's
// components: the dispatcher, subscription handler and peer registry are
// always created, the listener is bound only if self owns at least one
// variable (spec.md §4.4), plus the optional sidebands (metrics, NATS
// events, housekeeping). self is not checked against the manifest's owner
// names; a self that owns nothing simply binds no listener.
func New(manifestPath, self string, listenPort int, opts ...Option) (*State, error) {
	specs, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	o := options{cfg: Keys}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.cfg

	s := &State{
		self: self,
		cfg:  cfg,
		vars: make(map[string]*Variable),
	}
	for _, spec := range specs {
		s.vars[spec.Name] = newVariable(spec.Name, spec.Kind, spec.IsArray, spec.Owner, self)
	}

	s.dispatcher = newDispatcher(s)
	s.subs = newSubscriptions(s)
	s.peers = newPeerRegistry(s, cfg)
	if cfg.MetricsEnabled {
		s.metrics = newMetricsCollector(o.registry, self)
	}
	s.events = newEventPublisher(cfg, self)

	if NeedsListener(specs, self) {
		if err := s.listen(listenPort); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.hk = newHousekeeping(s, cfg.HousekeepingInterval)
	cclog.Infof("[DSML]> started self=%q variables=%d", self, len(s.vars))
	return s, nil
}

// lookup returns the named variable, or nil if it was never declared.
func (s *State) lookup(name string) *Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vars[name]
}

// variablesOwnedBy returns every variable declared with the given owner, for
// wiring a freshly (re-)registered connection to all of them at once.
func (s *State) variablesOwnedBy(owner string) []*Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Variable
	for _, v := range s.vars {
		if v.OwnerName == owner {
			out = append(out, v)
		}
	}
	return out
}

// applyOwnedMutation is the owner-side half of an update-request (spec.md
// §4.2 non-owner set, §4.6): mutate the local copy, fan it out to every
// subscriber, and emit the optional change event. The publishMu section
// guarantees this fan-out is not interleaved with a concurrent local Set of
// the same variable, preserving per-subscriber publish ordering.
func (s *State) applyOwnedMutation(v *Variable, data []byte) {
	s.publishMutation(v, data)
}

// RegisterOwner implements spec.md §6 `register_owner(name, ip, port)`:
// dial the owner at ip:port and wire the resulting connection to every
// variable it owns.
func (s *State) RegisterOwner(name, ip string, port int) error {
	conn, err := s.peers.dial(name, ip, port)
	if err != nil {
		return &SystemError{Op: "register_owner", Err: err}
	}
	return s.RegisterOwnerConn(name, conn)
}

// RegisterOwnerConn wires an already-established connection to owner name,
// for embedders that manage dialing themselves (spec.md §6 leaves the
// transport up to the caller once a connection exists).
func (s *State) RegisterOwnerConn(name string, conn net.Conn) error {
	s.peers.register(name, conn)
	return nil
}

// Close tears down every background goroutine and closes every socket this
// State opened. Safe to call more than once; only the first call acts.
func (s *State) Close() error {
	s.closeOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}
		if s.subs != nil {
			s.subs.closeAll()
		}
		if s.dispatcher != nil {
			s.dispatcher.closeAll()
		}
		if s.peers != nil {
			s.peers.closeAll()
		}
		s.hk.stop()
		s.events.close()
		s.wg.Wait()
		cclog.Infof("[DSML]> self=%q stopped", s.self)
	})
	return nil
}
