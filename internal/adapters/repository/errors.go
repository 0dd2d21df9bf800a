package repository

import "errors"

// Sentinel kinds for repository errors that are not domain kinds.
var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrMigration     = errors.New("migration failed")
)
