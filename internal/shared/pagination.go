package shared

// Page bounds for listing queries.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page is a normalised limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// NewPage clamps limit into [1, MaxPageSize], defaulting to DefaultPageSize,
// and rejects negative offsets by treating them as zero.
func NewPage(limit, offset int) Page {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return Page{Limit: limit, Offset: max(offset, 0)}
}
