package classification

import (
	"bytes"
	"encoding/json"
)

// Text is a JSON string field that also accepts numbers and null.
// Numbers keep their literal form; any other JSON kind decodes to "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*t = ""
		return nil
	}
	switch c := b[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*t = Text(n.String())
	default:
		*t = ""
	}
	return nil
}

// MacroSector is one row of the relational macro_economic_sectors collection.
type MacroSector struct {
	Code Text `json:"mes_code"`
	Name Text `json:"macro_economic_sector"`
}

// Sector is one row of the relational sectors collection.
type Sector struct {
	Code      Text `json:"sect_code"`
	Name      Text `json:"sector_name"`
	MacroCode Text `json:"mes_code"`
}

// Industry is one row of the relational industries collection.
type Industry struct {
	Code       Text `json:"ind_code"`
	Name       Text `json:"industry_name"`
	SectorCode Text `json:"sect_code"`
}

// BasicIndustry is one row of the relational basic_industries collection.
type BasicIndustry struct {
	Code         Text `json:"basic_ind_code"`
	Name         Text `json:"basic_industry_name"`
	IndustryCode Text `json:"ind_code"`
}

// FlatRow is a denormalized row carrying all four level names.
type FlatRow struct {
	Macro    Text `json:"macro_sector"`
	Sector   Text `json:"sector"`
	Industry Text `json:"industry"`
	Basic    Text `json:"basic_industry"`
}

// Payload is the canonical classification dataset. A nil collection means
// the server did not send it; an empty non-nil one means it sent [].
type Payload struct {
	MacroSectors    []MacroSector   `json:"macro_economic_sectors,omitempty"`
	Sectors         []Sector        `json:"sectors,omitempty"`
	Industries      []Industry      `json:"industries,omitempty"`
	BasicIndustries []BasicIndustry `json:"basic_industries,omitempty"`
	Rows            []FlatRow       `json:"rows,omitempty"`
}

// IsRelational reports whether all four relational collections are present.
func (p Payload) IsRelational() bool {
	return p.MacroSectors != nil && p.Sectors != nil && p.Industries != nil && p.BasicIndustries != nil
}

// IsEmpty reports whether no collection at all was recognised.
func (p Payload) IsEmpty() bool {
	return p.MacroSectors == nil && p.Sectors == nil && p.Industries == nil &&
		p.BasicIndustries == nil && p.Rows == nil
}

// Normalize reduces a raw dropdown-data response to a Payload. It accepts an
// object carrying the relational or flat collections, a bare array of flat
// rows, or an object wrapping either under "data" or "results". Anything
// else yields an empty Payload; it never fails.
func Normalize(raw []byte) Payload {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		return fromObject(obj, true)
	}
	if rows := decodeRows[FlatRow](raw); rows != nil {
		return Payload{Rows: rows}
	}
	return Payload{}
}

func fromObject(obj map[string]json.RawMessage, unwrap bool) Payload {
	var p Payload
	if v, ok := obj["macro_economic_sectors"]; ok {
		p.MacroSectors = decodeRows[MacroSector](v)
	}
	if v, ok := obj["sectors"]; ok {
		p.Sectors = decodeRows[Sector](v)
	}
	if v, ok := obj["industries"]; ok {
		p.Industries = decodeRows[Industry](v)
	}
	if v, ok := obj["basic_industries"]; ok {
		p.BasicIndustries = decodeRows[BasicIndustry](v)
	}
	if v, ok := obj["rows"]; ok {
		p.Rows = decodeRows[FlatRow](v)
	}
	if !p.IsEmpty() {
		return p
	}

	for _, key := range []string{"data", "results"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if rows := decodeRows[FlatRow](v); rows != nil {
			return Payload{Rows: rows}
		}
		if unwrap {
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(v, &inner); err == nil && inner != nil {
				return fromObject(inner, false)
			}
		}
	}
	return p
}

// decodeRows decodes a JSON array element by element, skipping elements that
// are not objects. It returns nil when raw is not an array.
func decodeRows[T any](raw json.RawMessage) []T {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
