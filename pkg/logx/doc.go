// Package logx configures EbiBot's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional Discord log channel sink (min-level + rate limiting)
package logx
