package storage

import "errors"

// Common client storage errors
var (
	// ErrItemNotFound indicates that queue item was not found
	ErrItemNotFound = errors.New("queue item not found")

	// ErrInvalidTransition indicates that the requested status change is not
	// allowed from the item's current state
	ErrInvalidTransition = errors.New("invalid queue item state transition")

	// ErrRecordNotFound indicates that record is not in the local cache
	ErrRecordNotFound = errors.New("record not found in local cache")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrWrongPassphrase indicates that the passphrase does not open the store
	ErrWrongPassphrase = errors.New("wrong passphrase")

	// ErrPassphraseRequired indicates that the store is encrypted and no
	// passphrase was supplied
	ErrPassphraseRequired = errors.New("store is encrypted, passphrase required")
)
