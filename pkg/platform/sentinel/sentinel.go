package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrAlreadyRevoked: the compare-and-swap on the revoked flag lost
//   - ErrConflict: a concurrent writer changed the record first
//   - ErrUnavailable: an upstream (signer, content store, broker) could not be reached
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyRevoked = errors.New("already revoked")
	ErrConflict       = errors.New("conflict")
	ErrUnavailable    = errors.New("unavailable")
)
