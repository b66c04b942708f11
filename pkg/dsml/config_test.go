// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRuntimeConfigDefaultsOnEmpty(t *testing.T) {
	cfg, err := LoadRuntimeConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, Keys, cfg)
}

func TestLoadRuntimeConfigOverridesDefaults(t *testing.T) {
	raw := []byte(`{"reconnect-max-per-sec": 5, "nats-events-enabled": true, "nats-address": "nats://localhost:4222", "dial-timeout-ms": 2500}`)
	cfg, err := LoadRuntimeConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.ReconnectMaxPerSec)
	assert.True(t, cfg.NatsEventsEnabled)
	assert.Equal(t, "nats://localhost:4222", cfg.NatsAddress)
	assert.Equal(t, 2500*time.Millisecond, cfg.DialTimeout)
	// Untouched fields keep their package defaults.
	assert.Equal(t, Keys.DialBackoffCacheSize, cfg.DialBackoffCacheSize)
}

func TestLoadRuntimeConfigRejectsUnknownField(t *testing.T) {
	_, err := LoadRuntimeConfig([]byte(`{"not-a-real-key": 1}`))
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadRuntimeConfigRejectsWrongType(t *testing.T) {
	_, err := LoadRuntimeConfig([]byte(`{"reconnect-max-per-sec": "fast"}`))
	require.Error(t, err)
}
