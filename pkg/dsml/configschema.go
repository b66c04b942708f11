// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

// runtimeConfigSchema is the embedded JSON Schema against which a
// RuntimeConfig document is validated, mirroring the teacher's
// internal/config/schema.go embedded-schema convention.
const runtimeConfigSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"title": "dsml runtime configuration",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"dial-timeout-ms":        { "type": "integer", "minimum": 1 },
		"reconnect-min-delay-ms": { "type": "integer", "minimum": 1 },
		"reconnect-max-per-sec":  { "type": "number", "exclusiveMinimum": 0 },
		"dial-backoff-cache-size": { "type": "integer", "minimum": 1 },
		"housekeeping-interval-ms": { "type": "integer", "minimum": 0 },
		"nats-events-enabled":    { "type": "boolean" },
		"nats-address":           { "type": "string" },
		"metrics-enabled":        { "type": "boolean" }
	}
}`
