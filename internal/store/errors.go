package store

import "errors"

var (
	ErrNotFound  = errors.New("entry not found")
	ErrSlugTaken = errors.New("slug already in use")
)
