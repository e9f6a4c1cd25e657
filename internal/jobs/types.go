// Package jobs names the background tasks shared between the scheduler and
// the worker.
package jobs

const (
	TaskSweepListeners = "monitor:sweep"
	TaskPurgeAudit     = "audit:purge"
)
