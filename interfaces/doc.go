// Package interfaces defines the domain model and the contracts shared by the
// storage policy layer: the BlobBackend contract consumed from concrete object
// stores, the StorageService contract exposed upward to callers, and the narrow
// collaborator contracts (counter store, audit sink) consumed by the filters.
//
// The package deliberately has no dependencies beyond the standard library so
// that every layer of the stack can depend on it without import cycles.
//
// Error semantics are part of the contract: backends surface absence as
// ErrNotFound and transport failure as ErrBackendUnavailable, and every
// decorating layer propagates backend errors unchanged (wrapped with context at
// most). Policy violations are reported through ValidationFailedError carrying
// the full accumulated error list rather than the first failure.
package interfaces
