// Package stream composes backfill, gap-detection, and live polling
// into one continuous, resumable item stream per query.
package stream

import (
	"fmt"
	"math/big"

	"github.com/user/gopherfeed/internal/types"
)

// CompareIDs compares two numeric-string ids as big integers. Returns
// -1, 0, or 1. Ids must fit arbitrary-precision integers; string
// comparison would mis-order ids of different lengths.
func CompareIDs(a, b string) (int, error) {
	x, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return 0, fmt.Errorf("%w: non-numeric id %q", types.ErrInvalidRequest, a)
	}
	y, ok := new(big.Int).SetString(b, 10)
	if !ok {
		return 0, fmt.Errorf("%w: non-numeric id %q", types.ErrInvalidRequest, b)
	}
	return x.Cmp(y), nil
}

// DecrementID returns the id's numeric value minus one. Backfill pages
// use an inclusive max-id boundary, so the already-seen boundary item
// must be excluded from the next page by anchoring one below it.
func DecrementID(id string) (string, error) {
	x, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return "", fmt.Errorf("%w: non-numeric id %q", types.ErrInvalidRequest, id)
	}
	return x.Sub(x, big.NewInt(1)).String(), nil
}

// advanceCursor applies the phase-agnostic update rule: MostRecentID
// moves up to the item's id if strictly greater, OldestSeenID moves
// down if strictly smaller. Applied uniformly so a stream interrupted
// mid-backfill resumes with a correct frontier in both directions.
// Items with non-numeric ids leave the cursor untouched.
func advanceCursor(c *types.Cursor, itemID string) {
	if itemID == "" {
		return
	}
	if c.MostRecentID == "" {
		c.MostRecentID = itemID
	} else if cmp, err := CompareIDs(itemID, c.MostRecentID); err == nil && cmp > 0 {
		c.MostRecentID = itemID
	}
	if c.OldestSeenID == "" {
		c.OldestSeenID = itemID
	} else if cmp, err := CompareIDs(itemID, c.OldestSeenID); err == nil && cmp < 0 {
		c.OldestSeenID = itemID
	}
}
