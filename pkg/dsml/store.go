// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"net"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/ClusterCockpit/cc-dsml/internal/wire"
)

// ownerConnLocked takes v.mu and returns the current owner connection, or nil
// if unregistered.
func (v *Variable) ownerConnLocked() net.Conn {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ownerConn
}

// setOwnerConn assigns the owner connection, implementing the "re-register
// replaces" half of spec.md §4.3. It does not itself send anything.
func (v *Variable) setOwnerConn(conn net.Conn) {
	v.mu.Lock()
	v.ownerConn = conn
	v.interestSent = false
	v.mu.Unlock()
}

// clearOwnerConnIfCurrent drops v.ownerConn back to "unregistered" if, and
// only if, it is still the given connection — a concurrent RegisterOwner
// may already have replaced it with a fresher one, which a failure report
// about the stale connection must not clobber. Used to prune a variable's
// owner link after a Peer-IO write failure (spec.md §7 kind 3).
func (v *Variable) clearOwnerConnIfCurrent(conn net.Conn) {
	v.mu.Lock()
	if v.ownerConn == conn {
		v.ownerConn = nil
		v.interestSent = false
	}
	v.mu.Unlock()
}

// registered reports whether this variable can participate in Get/Set:
// owned locally, or a remote owner connection has been registered
// (spec.md §3 invariant 3).
func (v *Variable) registered() bool {
	if v.isOwner {
		return true
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ownerConn != nil
}

// sendInterestLocked sends, at most once, the interest frame for a
// remotely-owned variable. Shared by getPayload, waitVersion and
// waitVersionFor so that Get, Wait and WaitFor all honor testable property
// 6 ("interest is idempotent") regardless of which one a caller reaches for
// first. Caller holds v.mu.
func (v *Variable) sendInterestLocked() {
	if v.isOwner || v.interestSent || v.ownerConn == nil {
		return
	}
	if err := wire.WriteInterest(v.ownerConn, v.Name); err != nil {
		cclog.Warnf("[DSML/STORE]> sending interest for %q failed: %v", v.Name, err)
	}
	v.interestSent = true
}

// getPayload implements C2 Get: for an owned variable, or one already past
// its first publish, returns the current payload immediately. For a
// remotely-owned variable on its first Get, it sends (at most once) an
// interest frame and blocks until the first publish lands — the §9
// "always wait on first Get" resolution.
func (v *Variable) getPayload() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.isOwner {
		v.sendInterestLocked()
		for v.version == 0 {
			v.cond.Wait()
		}
	}

	out := make([]byte, len(v.payload))
	copy(out, v.payload)
	return out
}

// elementCountFor computes the element count a received payload implies for
// this variable: 1 for scalars, len(data)/ElemSize for arrays. Used by both
// the inbound dispatcher and applyOwnedMutation so the two paths agree.
func (v *Variable) elementCountFor(data []byte) int {
	if !v.IsArray {
		return 1
	}
	if sz := v.Kind.ElemSize(); sz > 0 {
		return len(data) / sz
	}
	return len(data)
}

// applyLocal is the single place payload mutations happen: an owner's own
// Set, an owner applying a received update-request (spec.md §4.6), and the
// inbound dispatcher applying a publish from a remote owner all funnel
// through here. It bumps version and wakes every Wait/WaitFor/Get
// blocked on this variable.
func (v *Variable) applyLocal(payload []byte, elementCount int) time.Time {
	v.mu.Lock()
	now := time.Now()
	v.payload = payload
	v.elementCount = elementCount
	v.lastUpdated = now
	v.version++
	v.cond.Broadcast()
	v.mu.Unlock()
	return now
}

// sendUpdateRequest implements the non-owner half of C2 Set: proxy the
// write to the owner instead of mutating locally. The observable effect
// happens later, when the owner publishes (spec.md §4.2).
//
// On a write failure, the broken conn is returned alongside the error so
// the caller can prune it (spec.md §7 kind 3: the offending socket must be
// "closed and removed from all lists"); conn is nil whenever no socket
// needs pruning, i.e. on success or when no owner is registered at all.
func (v *Variable) sendUpdateRequest(payload []byte) (conn net.Conn, err error) {
	conn = v.ownerConnLocked()
	if conn == nil {
		return nil, ErrOwnerUnregistered
	}
	if err := wire.WriteUpdateRequest(conn, v.Name, payload); err != nil {
		return conn, err
	}
	return nil, nil
}

// waitVersion blocks until the variable's version differs from since, with
// no timeout — spec.md §4.2 `wait`. A remotely-owned variable that has
// never been Get before must still announce interest here, or its owner
// would never learn to publish to this process at all.
func (v *Variable) waitVersion(since int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sendInterestLocked()
	for v.version == since {
		v.cond.Wait()
	}
}

// currentVersion snapshots the version for a subsequent waitVersion/
// waitVersionFor call.
func (v *Variable) currentVersion() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// waitVersionFor blocks until the version changes or the deadline passes,
// returning whether a change was observed — spec.md §4.2 `wait_for`.
//
// sync.Cond has no timed wait, so this parks one extra goroutine that
// broadcasts the condition variable when the timer fires; the broadcast is
// indistinguishable from a real change to any other waiter, who simply
// re-checks its own predicate and goes back to sleep if nothing changed.
func (v *Variable) waitVersionFor(since int, d time.Duration) bool {
	timer := time.AfterFunc(d, func() {
		v.mu.Lock()
		v.cond.Broadcast()
		v.mu.Unlock()
	})
	defer timer.Stop()

	deadline := time.Now().Add(d)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sendInterestLocked()
	for v.version == since {
		if !time.Now().Before(deadline) {
			return false
		}
		v.cond.Wait()
	}
	return true
}
