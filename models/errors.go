package models

import "errors"

var (
	// ErrDecode marks a listing whose binary payload could not be decoded.
	ErrDecode = errors.New("decode error")
	// ErrNormalization marks a listing whose decoded tree is missing or contradicts
	// the structure the normalizer expects.
	ErrNormalization = errors.New("normalization error")
	// ErrDuplicateKey marks a primary row whose natural key is already stored.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrStorage marks any other storage-layer failure.
	ErrStorage = errors.New("storage error")
	// ErrSourceUnavailable marks an input file that is missing or unreadable.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrNoNewData is returned when the change gate finds nothing new to ingest.
	ErrNoNewData = errors.New("no new data")
)
