/*
Package log provides structured logging for vecton using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("consensus")                │          │
	│  │  - WithPeerID(3)                             │          │
	│  │  - WithCollection("docs")                    │          │
	│  │  - WithShard("docs", 2)                      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "consensus",                │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "shard transfer finished"     │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2024-10-13T10:30:00Z INF shard transfer finished component=consensus │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all vecton packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithNodeID: Add node ID context
  - WithPeerID: Add raft peer ID context
  - WithCollection: Add collection name context
  - WithShard: Add collection + shard ID context

# Usage

Initializing the Logger:

	import "github.com/cuemby/vecton/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/vecton.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("cluster bootstrapped")
	log.Debug("resolving alias")
	log.Warn("peer heartbeat missed")
	log.Error("failed to apply committed entry")
	log.Fatal("cannot open raft log store") // Exits process

Structured Logging:

	// The first argument is logged verbatim as the message; err becomes
	// the "error" field.
	log.Errorf("shard transfer aborted", err)

Component Loggers:

	// Create component-specific logger
	consensusLog := log.WithComponent("consensus")
	consensusLog.Info().Msg("applying committed entry")
	consensusLog.Debug().Uint64("index", idx).Msg("log entry appended")

	// Multiple context fields
	shardLog := log.WithComponent("collection").
		With().Str("collection", "docs").
		Uint32("shard_id", 2).Logger()
	shardLog.Info().Msg("shard transfer started")
	shardLog.Error().Err(err).Msg("shard transfer failed")

Context Logger Helpers:

	// Peer-specific logs
	peerLog := log.WithPeerID(7)
	peerLog.Info().Msg("peer joined cluster")

	// Collection-specific logs
	collLog := log.WithCollection("docs")
	collLog.Info().Msg("collection created")

	// Shard-specific logs
	shardLog := log.WithShard("docs", 2)
	shardLog.Info().Msg("shard replica activated")

# Integration Points

This package integrates with:

  - pkg/consensus: logs node open, apply halts, and failures to record applied progress
  - pkg/catalog: logs transfer finish/abort proposal failures and replication-factor warnings
  - pkg/scheduler: logs started transfers and reconcile failures
  - pkg/updates: warns when SyncPoints reaches effect-area estimation
  - cmd/vecton: logs node start, shutdown, and metrics server errors

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

# Log Rotation

vecton doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):

	# /etc/logrotate.d/vecton
	/var/log/vecton/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:

	# Automatic rotation by systemd
	journalctl -u vecton -f

# Log Aggregation

Query examples against structured fields:

  - component:"consensus" AND level:"error"
  - {component="collection"} |= "shard transfer"
  - service:vecton component:scheduler status:error

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log sensitive data (secrets, passwords)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
