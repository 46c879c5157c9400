// Package sqlite contains the SQLite repository implementation for sentry
// domain types.
//
// It translates frozen profiles and detections from the layer packages into
// rows of the detection log (internal/db), keeping domain logic free of SQL
// noise.
package sqlite
