package catalog

// Product is the catalog key stored on every payment.
type Product string

const (
	Descongel   Product = "descongel"
	Multidol400 Product = "multidol400"
	Multidol800 Product = "multidol800"
)

// Entry describes a product as shown to operators.
type Entry struct {
	Key   Product
	Name  string
	Icon  string
	Color string
}

var entries = []Entry{
	{Key: Descongel, Name: "Descongel x100 cápsulas", Icon: "❄️", Color: "#0ca678"},
	{Key: Multidol400, Name: "Multidol 400mg", Icon: "💊", Color: "#4c6ef5"},
	{Key: Multidol800, Name: "Multidol 800mg", Icon: "💊", Color: "#d6336c"},
}

// All returns the catalog in display order.
func All() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)

	return out
}

// Lookup returns the catalog entry for p.
func Lookup(p Product) (Entry, bool) {
	for _, e := range entries {
		if e.Key == p {
			return e, true
		}
	}

	return Entry{}, false
}

func (p Product) Valid() bool {
	_, ok := Lookup(p)
	return ok
}

// Name returns the display name, or the raw key for products no longer in the catalog.
func (p Product) Name() string {
	if e, ok := Lookup(p); ok {
		return e.Name
	}

	return string(p)
}
