/*
Package config loads event bus settings from YAML or JSON.

# Overview

Config wraps a map[string]any and provides typed accessors that return
defaults for missing keys and mismatched types. Settings is the typed view the
event bus consumes; ParseSettings fills it from a Config and Validate rejects
values the bus cannot honor.

# Basic Usage

	settings, err := config.LoadSettings("bus.yaml")
	if err != nil {
	    return err
	}
	bus, err := eventbus.FromSettings(settings)

A complete file:

	identifier: orders
	mode: async
	failure_policy: throw-unrecoverable
	async:
	  workers: 4
	  queue_size: 256
	retry:
	  max_attempts: 3
	  initial_backoff: 10ms
	  max_backoff: 250ms
	journal:
	  driver: sqlite
	  path: /var/lib/orders/journal.db
	metrics: true
	tracing: true

# Type Coercion

Duration accepts strings parsed with time.ParseDuration, or numbers
interpreted as seconds. Int accepts float64 values without a fractional part,
which is how encoding/json decodes numbers.
*/
package config
