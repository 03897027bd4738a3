// Package validation provides common validation utilities for configuration
// parameters across the webstreams library.
//
// Constructors use these helpers so that a rejected queuing strategy, chunk
// size or cron expression always surfaces as a *errors.ValidationError that
// wraps errors.ErrInvalidConfiguration.
package validation
