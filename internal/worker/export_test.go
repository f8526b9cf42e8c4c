package worker

import "time"

// SetClock replaces the worker's notion of now.
func (w *Worker) SetClock(now func() time.Time) { w.now = now }
