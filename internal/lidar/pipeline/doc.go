// Package pipeline provides orchestration for the sentry detection loop.
//
// It wires together L1-L3 (synchronize, decode, project, calibrate or
// select) and the adapter sinks (actuator, detection log, debug tail) into a
// single-threaded processing flow used for both live capture and replay.
// The pipeline does not own domain logic; it delegates to layer packages.
//
// This package is the composition root: it imports from layer packages but
// none of those packages import pipeline/.
package pipeline
