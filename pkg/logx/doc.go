// Package logx is linkbot's logging layer: a thin value-type wrapper over
// zerolog with a hot-swappable sink set.
//
// Sinks:
//   - console (human readable, short caller)
//   - append-only JSON file
//   - chat sink that forwards warnings to the operators' log group, rate limited
package logx
