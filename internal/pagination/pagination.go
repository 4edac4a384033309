package pagination

import "github.com/lalith-99/panelwatch/internal/apperr"

const (
	DefaultLimit = 20
	MinLimit     = 1
	MaxLimit     = 100
)

// Page is an offset-based window over a listing.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps limit into [MinLimit, MaxLimit] and rejects a negative
// offset. Out-of-range limits are not an error, they are clamped.
func Normalize(limit, offset int) (Page, error) {
	if offset < 0 {
		return Page{}, apperr.NewValidationError("offset", "must not be negative")
	}
	if limit < MinLimit {
		limit = MinLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Limit: limit, Offset: offset}, nil
}

// HasMore reports whether rows remain after this page given the total.
func (p Page) HasMore(returned, total int) bool {
	return p.Offset+returned < total
}
