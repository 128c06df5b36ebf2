// Package scheduler runs named periodic jobs on robfig/cron.
//
// Jobs are upserted by name, run with a per-job timeout and never overlap
// with themselves: a tick that fires while the previous run is still active
// is skipped.
package scheduler
