/*
Package config loads the eventgate configuration surface.

# Accessors

Config wraps a map[string]any decoded from YAML or JSON. Accessors take a
default and return it whenever the key is missing or has the wrong type.
Dotted keys reach into nested sections:

	cfg, err := config.FromFile("eventgate.yaml")
	depth := cfg.Int("scan.max_depth", 10)

# Settings

Settings is the typed view the pipeline consumes:

	enabled: true
	strategy: diff          # cooperative | direct | diff | parameters
	log_timing: true
	nested_policy: reject   # reject | reset
	scan:
	  max_depth: 10
	  capture_depth: 1
	  excluded_packages: [github.com/acme/orm]
	metrics: prometheus     # none | otel | prometheus
	tracing: true
	nats:
	  url: nats://localhost:4222
	  subject_prefix: events
	  timeout: 5s
	journal:
	  path: /var/lib/eventgate/journal.db

LoadSettings reads a file, applies defaults and validates the result.

# Reloading

Watcher re-reads the file on change and passes the new Settings to a
callback, typically Boundary.Apply. A file that fails validation is logged
and the previous settings stay in effect.
*/
package config
