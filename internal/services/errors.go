package services

import "errors"

// ErrNotFound is returned when a requested row does not exist. Controllers
// recover from it by redirecting to the index page.
var ErrNotFound = errors.New("not found")
