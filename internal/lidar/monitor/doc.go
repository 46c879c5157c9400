// Package monitor renders the live reference profile and recorded sessions
// for debugging: an HTML chart served under /debug/ and an offline PNG plot.
package monitor
