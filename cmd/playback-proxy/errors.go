package main

import (
	"errors"

	"github.com/ideamans/go-http-playback-proxy/internal/inventory"
)

// BindFailedError marks a listener bind failure, one of the two fatal
// error kinds spec.md §7's propagation rule names ("only BindFailed and
// MalformedInventory are allowed to terminate the process").
type BindFailedError struct{ Err error }

func (e *BindFailedError) Error() string { return "bind failed: " + e.Err.Error() }
func (e *BindFailedError) Unwrap() error { return e.Err }

// CAGenerationFailedError marks a failure to generate or load the
// session's root certificate authority, fatal for the same reason a bad
// bind is: the recording engine cannot do its job at all without it.
type CAGenerationFailedError struct{ Err error }

func (e *CAGenerationFailedError) Error() string { return "ca generation failed: " + e.Err.Error() }
func (e *CAGenerationFailedError) Unwrap() error { return e.Err }

// exitCodeFor maps a fatal startup/shutdown error to a process exit code,
// per spec.md §6/§7: 0 on a clean signal-triggered shutdown, non-zero on
// BindFailed/MalformedInventory/CA-generation failure.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var bindErr *BindFailedError
	if errors.As(err, &bindErr) {
		return 2
	}
	var malformed *inventory.MalformedInventoryError
	if errors.As(err, &malformed) {
		return 3
	}
	var caErr *CAGenerationFailedError
	if errors.As(err, &caErr) {
		return 4
	}
	return 1
}
