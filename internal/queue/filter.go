package queue

import (
	"slices"

	"github.com/user/gopherfeed/internal/types"
)

// Filter is an ordered set of independent predicates over a
// QueueEntry: chat identity, message-type membership, and command
// membership. Categories compose by logical AND. Within the
// content-type category an explicit command list is an override: it
// re-admits a command that message-type filtering would otherwise
// exclude. Filters are pure functions over the entry and consult no
// external state.
type Filter struct {
	ChatIDs      []string
	MessageTypes []string
	Commands     []string
}

// Match reports whether the entry passes every requested category.
func (f *Filter) Match(e *types.QueueEntry) bool {
	if len(f.ChatIDs) > 0 && !slices.Contains(f.ChatIDs, e.ChatID) {
		return false
	}
	if e.IsCommand() {
		if len(f.Commands) > 0 {
			return slices.Contains(f.Commands, e.Command)
		}
		// Commands are their own content type: a message-type filter
		// with no explicit command list excludes them.
		if len(f.MessageTypes) > 0 {
			return slices.Contains(f.MessageTypes, "command")
		}
		return true
	}
	if len(f.MessageTypes) > 0 && !slices.Contains(f.MessageTypes, e.MessageType) {
		return false
	}
	return true
}
