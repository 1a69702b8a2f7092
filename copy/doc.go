// Package copy implements the two-peer dataflow engine that moves bytes
// from one xfer.Session (get) to another (put), reconciling independent
// seek/position/size/date state, handling truncation/restart, optional
// line-buffered translation, and rate/ETA tracking (spec.md §4.7).
//
// FileCopy is itself a scheduler.Task: its Do method performs at most one
// state transition per call, the same contract every protocol Engine
// already honors, so a copy can be scheduled alongside the sessions it
// drives without any special-casing in the scheduler.
package copy
