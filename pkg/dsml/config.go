// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RuntimeConfig carries the non-protocol knobs of a State (spec.md leaves
// all of this to the embedder). Defaults here follow the teacher's
// package-level `var Keys = schema.ProgramConfig{...}` convention
// (internal/config/config.go).
type RuntimeConfig struct {
	DialTimeout            time.Duration `json:"-"`
	ReconnectMinDelay      time.Duration `json:"-"`
	ReconnectMaxPerSec     float64       `json:"reconnect-max-per-sec"`
	DialBackoffCacheSize   int           `json:"dial-backoff-cache-size"`
	HousekeepingInterval   time.Duration `json:"-"`
	NatsEventsEnabled      bool          `json:"nats-events-enabled"`
	NatsAddress            string        `json:"nats-address"`
	MetricsEnabled         bool          `json:"metrics-enabled"`

	DialTimeoutMs          int `json:"dial-timeout-ms"`
	ReconnectMinDelayMs    int `json:"reconnect-min-delay-ms"`
	HousekeepingIntervalMs int `json:"housekeeping-interval-ms"`
}

// Keys holds the process-wide default RuntimeConfig, exactly mirroring the
// teacher's `internal/config/config.go` package-level `Keys` default.
var Keys = RuntimeConfig{
	DialTimeout:          5 * time.Second,
	ReconnectMinDelay:    200 * time.Millisecond,
	ReconnectMaxPerSec:   2,
	DialBackoffCacheSize: 64,
	HousekeepingInterval: 30 * time.Second,
}

var runtimeSchema = jsonschema.MustCompileString("dsml://runtime-config.json", runtimeConfigSchema)

// LoadRuntimeConfig validates raw against the embedded schema, decodes it
// over a copy of Keys (so unset fields keep their defaults), and returns
// the result. A nil/empty raw returns Keys unchanged.
func LoadRuntimeConfig(raw json.RawMessage) (RuntimeConfig, error) {
	cfg := Keys
	if len(raw) == 0 {
		return cfg, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RuntimeConfig{}, &ConfigError{Path: "<runtime-config>", Err: err}
	}
	if err := runtimeSchema.Validate(doc); err != nil {
		return RuntimeConfig{}, &ConfigError{Path: "<runtime-config>", Err: fmt.Errorf("schema validation: %w", err)}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cfg); err != nil {
		return RuntimeConfig{}, &ConfigError{Path: "<runtime-config>", Err: err}
	}

	if cfg.DialTimeoutMs > 0 {
		cfg.DialTimeout = time.Duration(cfg.DialTimeoutMs) * time.Millisecond
	}
	if cfg.ReconnectMinDelayMs > 0 {
		cfg.ReconnectMinDelay = time.Duration(cfg.ReconnectMinDelayMs) * time.Millisecond
	}
	if cfg.HousekeepingIntervalMs > 0 {
		cfg.HousekeepingInterval = time.Duration(cfg.HousekeepingIntervalMs) * time.Millisecond
	}
	return cfg, nil
}
