// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to
// distinguish missing rows from storage failures without depending on
// database/sql directly.
package repository

import "errors"

// ErrNotFound is returned when a looked-up seller, buyer or ticket does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be performed because of
// existing state, such as a duplicate roster entry.
var ErrConflict = errors.New("conflict")
