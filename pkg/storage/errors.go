package storage

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyKey        = errors.New("empty key")
	ErrEntityExists    = errors.New("entity already exists")
	ErrInvalidData     = errors.New("invalid data type")
	ErrUnsupportedType = errors.New("unsupported storage type")
	ErrRoundNotFound   = errors.New("round not found")
)
