// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"errors"
	"fmt"
)

// ConfigError is spec.md §7 error kind 1: malformed manifest, unknown type,
// or a STRING declared as an array. Raised only during construction.
type ConfigError struct {
	Path string
	Line int // 0 if not line-specific
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("dsml: config error in %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("dsml: config error in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UsageError is spec.md §7 error kind 2: Get/Set on an unknown variable, an
// unregistered owner, or a type that fails the §3 compatibility rule. The
// store is left unmodified whenever a UsageError is returned.
type UsageError struct {
	Name string
	Err  error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("dsml: usage error for variable %q: %v", e.Name, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }

// SystemError is spec.md §7 error kind 4: socket/bind/listen/pipe creation
// failure at construction, which is always fatal to New. RegisterOwner also
// returns one when dialing the owner fails.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("dsml: system error during %s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// Sentinel causes wrapped by UsageError, checkable with errors.Is.
var (
	ErrVariableMissing  = errors.New("variable not declared in manifest")
	ErrOwnerUnregistered = errors.New("owner connection not yet registered")
	ErrTypeMismatch     = errors.New("requested type incompatible with stored type")
)

// Sentinel causes wrapped by ConfigError.
var (
	ErrUnknownType      = errors.New("unknown variable type")
	ErrStringArray      = errors.New("STRING variables cannot be declared as arrays")
	ErrMalformedRecord  = errors.New("malformed manifest record")
	ErrDuplicateVariable = errors.New("variable declared more than once")
)
