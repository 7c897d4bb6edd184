/*
Package log provides structured logging for sdscompose using zerolog.

A single package-level Logger is configured once by Init from the CLI flags or
the YAML configuration. Packages derive child loggers that carry context
fields rather than formatting it into messages:

	logger := log.WithComponent("remote")
	logger.Info().Str("host", host).Str("path", path).Msg("Configuration pushed")

	poolLog := log.WithPool("gold", "gold_backend")
	poolLog.Warn().Msg("Volume type already removed")

# Output

JSON output is meant for production and log shipping; console output is the
default for interactive use. Both include an RFC3339 timestamp:

	{"level":"info","component":"compose","pool":"gold","time":"...","message":"Pool created"}
	10:30AM INF Pool created component=compose pool=gold

Logs go to stderr unless Config.Output says otherwise, so command output on
stdout stays machine readable.

# Levels

Debug traces every host copy and section rewrite. Info records completed
pool operations. Warn covers recoverable surprises such as an ambiguous
section match or temporary files left behind after a failed host. Error is
reserved for failed operations.
*/
package log
