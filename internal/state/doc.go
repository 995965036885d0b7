// Package state provides filesystem-backed storage implementations.
package state

import "github.com/user/gopherfeed/internal/types"

// Compile-time interface compliance checks.
var _ types.StateStore = (*StreamStateStore)(nil)
