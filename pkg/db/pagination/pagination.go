package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" binding:"omitempty,gte=1,lte=100"`
}

// Size clamps Limit into [1, MaxLimit], falling back to DefaultLimit.
func (p Pagination) Size() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Cursor points at the last row of the previous page. Rows are keyed by
// snowflake ids, which sort in creation order.
type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPage trims a result fetched with limit+1 rows down to limit and
// reports whether another page exists.
func BuildCursorPage[T any](data []*T, limit int, extractID func(*T) string) ([]*T, *PageInfo) {
	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}
	}

	hasMore := len(data) > limit
	if hasMore {
		data = data[:limit]
	}

	info := &PageInfo{HasMore: hasMore}
	if hasMore {
		info.NextCursor, _ = EncodeCursor(Cursor{ID: extractID(data[len(data)-1])})
	}

	return data, info
}
