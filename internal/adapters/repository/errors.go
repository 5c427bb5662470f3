package repository

import (
	"errors"

	"github.com/okian/lighttrace/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrInvalidEntry = model.ErrInvalidEntry
	ErrClosed       = errors.New("trace store closed")
)
