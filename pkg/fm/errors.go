package fm

import "errors"

var (
	ErrAlreadyInstalled = errors.New("already installed")
	ErrNotInstalled     = errors.New("not installed")
	ErrDuplicate        = errors.New("duplicate font")
	ErrSystemFont       = errors.New("system font cannot be removed")
	ErrSourceNotFound   = errors.New("source not found")
)
