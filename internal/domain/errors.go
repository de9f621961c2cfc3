// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrValidation indicates malformed patient input, rejected before any network call.
var ErrValidation = errors.New("validation failed")

// ErrNotFound indicates the requested trial does not exist in the registry.
var ErrNotFound = errors.New("not found")

// ErrRegistryUnavailable indicates the trial registry is degraded or unreachable.
// Distinct from an empty search result, which is a successful call.
var ErrRegistryUnavailable = errors.New("trial registry unavailable")

// ErrProviderUnavailable indicates the reasoning backend timed out, returned a
// non-success status, or could not be reached.
var ErrProviderUnavailable = errors.New("reasoning provider unavailable")

// ErrParseFailure indicates the reasoning backend returned text from which no
// usable verdict could be recovered.
var ErrParseFailure = errors.New("unparseable provider response")
