// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// VariableSpec is one accepted record of the manifest grammar (spec.md
// §4.1): `<name> <type> <owner> <is_array>`.
type VariableSpec struct {
	Name    string
	Kind    Kind
	Owner   string
	IsArray bool
}

// LoadManifest parses the manifest at path per spec.md §4.1: one record per
// line, tab- or whitespace-separated, blank lines and lines starting with
// '#' ignored. Any malformed value at any position, or a STRING declared
// with is_array=true, is a fatal *ConfigError.
func LoadManifest(path string) ([]VariableSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	seen := make(map[string]bool)
	var specs []VariableSpec

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, &ConfigError{Path: path, Line: lineNo,
				Err: fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedRecord, len(fields))}
		}

		name, typeName, owner, isArrayStr := fields[0], fields[1], fields[2], fields[3]

		kind, ok := kindByName[strings.ToUpper(typeName)]
		if !ok {
			return nil, &ConfigError{Path: path, Line: lineNo,
				Err: fmt.Errorf("%w: %q", ErrUnknownType, typeName)}
		}

		var isArray bool
		switch isArrayStr {
		case "true":
			isArray = true
		case "false":
			isArray = false
		default:
			return nil, &ConfigError{Path: path, Line: lineNo,
				Err: fmt.Errorf("%w: is_array must be true or false, got %q", ErrMalformedRecord, isArrayStr)}
		}

		if kind == KindString && isArray {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: ErrStringArray}
		}

		if seen[name] {
			return nil, &ConfigError{Path: path, Line: lineNo,
				Err: fmt.Errorf("%w: %q", ErrDuplicateVariable, name)}
		}
		seen[name] = true

		specs = append(specs, VariableSpec{Name: name, Kind: kind, Owner: owner, IsArray: isArray})
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	return specs, nil
}

// NeedsListener reports whether a process loading this manifest as `self`
// owns at least one variable and therefore must bind a listening socket
// (spec.md §4.1, §4.4).
func NeedsListener(specs []VariableSpec, self string) bool {
	for _, s := range specs {
		if s.Owner == self {
			return true
		}
	}
	return false
}

// NeedsDispatcher reports whether a process loading this manifest as `self`
// does not own at least one variable and therefore must run the inbound
// dispatcher (spec.md §4.1, §4.5).
func NeedsDispatcher(specs []VariableSpec, self string) bool {
	for _, s := range specs {
		if s.Owner != self {
			return true
		}
	}
	return false
}
