// Package log provides structured protocol logging for Grenton CLU clients.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, subscription).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/grenton/clu.glog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/grenton/clu.glog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Encrypted datagram sizes and bytes (DatagramEvent)
//   - Wire: Decrypted request, reply and push frames (MessageEvent)
//   - Subscription: Client page lifecycle (PageStateEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with .glog extension. The grenton-log CLI tool
// provides viewing, filtering, and export capabilities.
package log
