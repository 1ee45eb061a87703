package scheduler

import "sessionrotor/internal/settings"

// Apply arms or disarms the scheduler from the schedule keys of snap,
// using the documented defaults for absent keys.
func (s *Scheduler) Apply(snap settings.Snapshot) error {
	if !snap.Bool(settings.KeyScheduleEnabled, false) {
		s.Deactivate()
		return nil
	}
	return s.Activate(
		snap.String(settings.KeyScheduledRunTime, settings.DefaultScheduledRunTime),
		snap.Int(settings.KeyJitterMinutes, settings.DefaultJitterMinutes),
	)
}
