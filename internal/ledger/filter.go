package ledger

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
)

// Filter is the operator-facing set of payment filters. All fields are optional.
type Filter struct {
	Product  catalog.Product
	Status   Status
	Month    string // YYYY-MM
	Pharmacy string
}

// Criteria is a Filter resolved into the exact conditions a store applies.
type Criteria struct {
	Product     *catalog.Product
	Status      *Status
	From        *time.Time // inclusive
	To          *time.Time // exclusive
	PharmacyKey string
}

// Criteria resolves the filter. An invalid status is ignored; a malformed
// month is rejected.
func (f Filter) Criteria() (Criteria, error) {
	var c Criteria

	if p := catalog.Product(strings.TrimSpace(string(f.Product))); p != "" {
		c.Product = &p
	}

	if f.Status.Valid() {
		c.Status = new(f.Status)
	}

	if m := strings.TrimSpace(f.Month); m != "" {
		start, err := time.Parse("2006-01", m)
		if err != nil {
			return Criteria{}, invalid("month", "must be YYYY-MM")
		}

		end := start.AddDate(0, 1, 0)
		c.From = &start
		c.To = &end
	}

	c.PharmacyKey = NormalizeKey(f.Pharmacy)

	return c, nil
}

// Match reports whether p satisfies the criteria. Stores that cannot push
// the conditions down use it directly.
func (c Criteria) Match(p *Payment) bool {
	if c.Product != nil && p.Product != *c.Product {
		return false
	}

	if c.Status != nil && p.Status != *c.Status {
		return false
	}

	if c.From != nil && p.Date.Before(*c.From) {
		return false
	}

	if c.To != nil && !p.Date.Before(*c.To) {
		return false
	}

	if c.PharmacyKey != "" && p.PharmacyKey != c.PharmacyKey {
		return false
	}

	return true
}

// Cursor marks the last payment of a page. Pages are ordered by date
// descending, then id descending.
type Cursor struct {
	Date time.Time
	ID   uuid.UUID
}

func CursorFor(p *Payment) Cursor {
	return Cursor{Date: p.Date, ID: p.ID}
}

// Encode returns the opaque token handed to clients.
func (c Cursor) Encode() string {
	raw := c.Date.Format(time.DateOnly) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalid("cursor", "malformed token")
	}

	datePart, idPart, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, invalid("cursor", "malformed token")
	}

	date, err := time.Parse(time.DateOnly, datePart)
	if err != nil {
		return nil, invalid("cursor", fmt.Sprintf("bad date %q", datePart))
	}

	id, err := uuid.Parse(idPart)
	if err != nil {
		return nil, invalid("cursor", "bad id")
	}

	return &Cursor{Date: date, ID: id}, nil
}

// Follows reports whether p sorts strictly after the cursor.
func (c Cursor) Follows(p *Payment) bool {
	if !p.Date.Equal(c.Date) {
		return p.Date.Before(c.Date)
	}

	return bytes.Compare(p.ID[:], c.ID[:]) < 0
}

// PageQuery is what the query façade asks a store for.
type PageQuery struct {
	Criteria Criteria
	After    *Cursor
	Limit    int
}

// FetchParams is the input of Service.Fetch.
type FetchParams struct {
	PageSize int
	Cursor   string
	Filter   Filter
}

type Pagination struct {
	Total    int64
	PageSize int
	HasNext  bool
	// LastCursor points at the last payment returned, empty for an empty page.
	LastCursor string
}

type PaymentPage struct {
	Payments   []*Payment
	Pagination Pagination
	Totals     Totals
}
