// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"fmt"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// resolve looks up name and checks it against the requested shape (scalar
// vs. array) and Kind compatibility rule, returning a *UsageError that
// leaves the store untouched on any mismatch (spec.md §3 invariant 3, §7
// usage-error kind).
func (s *State) resolve(name string, want Kind, wantArray, forSet bool) (*Variable, error) {
	v := s.lookup(name)
	if v == nil {
		return nil, &UsageError{Name: name, Err: ErrVariableMissing}
	}
	if v.IsArray != wantArray {
		return nil, &UsageError{Name: name, Err: fmt.Errorf("%w: array-ness mismatch", ErrTypeMismatch)}
	}
	if forSet {
		if !satisfiesSet(v.Kind, want) {
			return nil, &UsageError{Name: name, Err: fmt.Errorf("%w: stored %s, requested %s", ErrTypeMismatch, v.Kind, want)}
		}
	} else if !satisfiesGet(v.Kind, want, wantArray) {
		return nil, &UsageError{Name: name, Err: fmt.Errorf("%w: stored %s, requested %s", ErrTypeMismatch, v.Kind, want)}
	}
	if !v.registered() {
		return nil, &UsageError{Name: name, Err: ErrOwnerUnregistered}
	}
	return v, nil
}

// doSet is the single write path shared by every Set/SetArray/SetString:
// owned variables mutate and fan out under publishMu (spec.md §4.6 ordering
// guarantee), non-owned variables proxy the write as an update-request
// (spec.md §4.2). A failed update-request write is a Peer-IO error (spec.md
// §7 kind 3): it is logged and the broken connection is pruned, but it is
// never propagated to the caller — "a subsequent set to a disconnected
// owner returns a negative value but does not throw".
func (s *State) doSet(v *Variable, payload []byte) error {
	if v.isOwner {
		s.publishMutation(v, payload)
		return nil
	}
	conn, err := v.sendUpdateRequest(payload)
	if err == nil {
		return nil
	}
	if conn != nil {
		cclog.Warnf("[DSML/STORE]> update-request write to owner %q for %q failed: %v", v.OwnerName, v.Name, err)
		s.peers.pruneConn(v.OwnerName, conn)
	}
	return nil
}

// publishMutation applies payload to an owned variable and fans it out to
// every subscriber as one unit under publishMu, used both by a local Set
// and by an applied update-request from a non-owner (spec.md §4.6).
func (s *State) publishMutation(v *Variable, payload []byte) {
	elementCount := v.elementCountFor(payload)
	v.publishMu.Lock()
	now := v.applyLocal(payload, elementCount)
	s.subs.publish(v.Name, payload)
	v.publishMu.Unlock()
	s.emitEvent(v.Name, now)
}

// Get implements spec.md §4.2 `get<T>`: read a scalar variable, widening
// from its stored Kind into T where the §3 compatibility rule allows it.
func Get[T Scalar](s *State, name string) (T, error) {
	var zero T
	v, err := s.resolve(name, kindOf[T](), false, false)
	if err != nil {
		return zero, err
	}
	return decodeWidened[T](v.getPayload(), v.Kind), nil
}

// Set implements spec.md §4.2 `set<T>`: an owner mutates and publishes
// immediately; a non-owner sends an update-request to the owner instead.
// The stored Kind must match T exactly (no widening on write).
func Set[T Scalar](s *State, name string, value T) error {
	v, err := s.resolve(name, kindOf[T](), false, true)
	if err != nil {
		return err
	}
	buf := make([]byte, v.Kind.ElemSize())
	encodeScalar(buf, value)
	return s.doSet(v, buf)
}

// GetArray implements spec.md §4.2 `get<T[]>`: arrays require an exact Kind
// match, never widening.
func GetArray[T Scalar](s *State, name string) ([]T, error) {
	v, err := s.resolve(name, kindOf[T](), true, false)
	if err != nil {
		return nil, err
	}
	payload := v.getPayload()
	count := 0
	if sz := v.Kind.ElemSize(); sz > 0 {
		count = len(payload) / sz
	}
	return decodeArray[T](payload, v.Kind, count), nil
}

// SetArray implements spec.md §4.2 `set<T[]>`.
func SetArray[T Scalar](s *State, name string, values []T) error {
	v, err := s.resolve(name, kindOf[T](), true, true)
	if err != nil {
		return err
	}
	return s.doSet(v, encodeArray(values))
}

// GetString implements spec.md §4.2 `get<STRING>`.
func GetString(s *State, name string) (string, error) {
	v, err := s.resolve(name, KindString, false, false)
	if err != nil {
		return "", err
	}
	return string(v.getPayload()), nil
}

// SetString implements spec.md §4.2 `set<STRING>`.
func SetString(s *State, name, value string) error {
	v, err := s.resolve(name, KindString, false, true)
	if err != nil {
		return err
	}
	return s.doSet(v, []byte(value))
}

// Wait implements spec.md §4.2 `wait`: block until the named variable's
// value changes at least once more, with no timeout.
func Wait(s *State, name string) error {
	v := s.lookup(name)
	if v == nil {
		return &UsageError{Name: name, Err: ErrVariableMissing}
	}
	since := v.currentVersion()
	v.waitVersion(since)
	return nil
}

// WaitFor implements spec.md §4.2 `wait_for`: block until a change or the
// deadline, reporting which one occurred.
func WaitFor(s *State, name string, d time.Duration) (bool, error) {
	v := s.lookup(name)
	if v == nil {
		return false, &UsageError{Name: name, Err: ErrVariableMissing}
	}
	since := v.currentVersion()
	return v.waitVersionFor(since, d), nil
}
