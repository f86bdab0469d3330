package cart

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// MaxQty is the largest quantity a single cart line may hold.
const MaxQty = 20

// Meta is opaque per-line selection data, e.g. {"gripColors": ["red"]}.
type Meta map[string]any

// Line is one entry of the cart.
type Line struct {
	PriceRowID string `json:"priceRowId"`
	Qty        int    `json:"qty"`
	Meta       Meta   `json:"meta,omitempty"`
}

// metaKey is the canonical encoding used to compare metadata.
// encoding/json sorts map keys, so equal maps encode identically.
func metaKey(m Meta) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(m))
	}
	return string(b)
}

func lineKey(id string, m Meta) string {
	return id + "\x00" + metaKey(m)
}

// SameMeta reports whether a and b select the same variant.
func SameMeta(a, b Meta) bool {
	return metaKey(a) == metaKey(b)
}

// Normalize merges lines sharing (PriceRowID, Meta) by summing quantities,
// clamps quantities to MaxQty and drops lines with a blank id or a
// non-positive quantity. Each incoming quantity is bounded to
// [-MaxQty, MaxQty] before summing so the sum cannot overflow. First-seen
// order is preserved. The result is never nil.
func Normalize(lines []Line) []Line {
	merged := make([]Line, 0, len(lines))
	index := make(map[string]int, len(lines))

	for _, l := range lines {
		if strings.TrimSpace(l.PriceRowID) == "" {
			continue
		}
		qty := min(max(l.Qty, -MaxQty), MaxQty)
		k := lineKey(l.PriceRowID, l.Meta)
		if i, ok := index[k]; ok {
			merged[i].Qty += qty
			continue
		}
		index[k] = len(merged)
		merged = append(merged, Line{PriceRowID: l.PriceRowID, Qty: qty, Meta: cloneMeta(l.Meta)})
	}

	out := merged[:0]
	for _, l := range merged {
		if l.Qty <= 0 {
			continue
		}
		if l.Qty > MaxQty {
			l.Qty = MaxQty
		}
		out = append(out, l)
	}
	return out
}

type persistedLine struct {
	PriceRowID string  `json:"priceRowId"`
	Qty        float64 `json:"qty"`
	Meta       Meta    `json:"meta"`
}

// Decode parses persisted cart data and repairs it. Anything that is not a
// JSON array yields an empty cart; array elements that cannot be read as a
// line are skipped; fractional quantities are truncated.
func Decode(raw []byte) []Line {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []Line{}
	}

	lines := make([]Line, 0, len(elems))
	for _, e := range elems {
		var p persistedLine
		if err := json.Unmarshal(e, &p); err != nil {
			continue
		}
		q := math.Trunc(p.Qty)
		if q > MaxQty {
			q = MaxQty
		} else if q < 0 {
			q = 0
		}
		lines = append(lines, Line{PriceRowID: p.PriceRowID, Qty: int(q), Meta: p.Meta})
	}
	return Normalize(lines)
}

// Encode serializes normalized lines for storage.
func Encode(lines []Line) ([]byte, error) {
	return json.Marshal(Normalize(lines))
}

func cloneMeta(m Meta) Meta {
	if len(m) == 0 {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = Line{PriceRowID: l.PriceRowID, Qty: l.Qty, Meta: cloneMeta(l.Meta)}
	}
	return out
}
