// Package logx is a small zerolog facade shared by all services.
//
// It provides:
//   - a Field-based call API (no format strings at call sites)
//   - a Service that can swap sinks/levels at runtime on config reload
//   - console and JSON file sinks
package logx
