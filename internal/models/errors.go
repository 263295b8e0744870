package models

import "errors"

// ErrContactNotFound is returned by stores when no live contact has the
// requested id.
var ErrContactNotFound = errors.New("contact not found")
