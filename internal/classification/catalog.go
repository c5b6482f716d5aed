package classification

import "encoding/json"

type catalogItem struct {
	BasicIndCode      Text `json:"basic_ind_code"`
	Code              Text `json:"code"`
	BasicIndustryName Text `json:"basic_industry_name"`
	Name              Text `json:"name"`
}

func (c catalogItem) option() BasicOption {
	code := clean(c.BasicIndCode)
	if code == "" {
		code = clean(c.Code)
	}
	name := clean(c.BasicIndustryName)
	if name == "" {
		name = clean(c.Name)
	}
	return BasicOption{Name: name, Code: code}
}

// ParseCatalog decodes the basic-industry catalog. The list may be bare or
// wrapped under "basic_industries" or "data". Entries lacking a code or a
// name are dropped; the result is sorted by name without duplicate names.
func ParseCatalog(raw []byte) []BasicOption {
	items := decodeRows[catalogItem](raw)
	if items == nil {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err == nil {
			for _, key := range []string{"basic_industries", "data"} {
				if v, ok := obj[key]; ok {
					if items = decodeRows[catalogItem](v); items != nil {
						break
					}
				}
			}
		}
	}

	opts := make([]BasicOption, 0, len(items))
	for _, item := range items {
		o := item.option()
		if o.Code == "" || o.Name == "" {
			continue
		}
		opts = append(opts, o)
	}
	return SortOptions(opts)
}

// LookupName returns the name of the option with the given code.
func LookupName(opts []BasicOption, code string) (string, bool) {
	if code == "" {
		return "", false
	}
	for _, o := range opts {
		if o.Code == code {
			return o.Name, true
		}
	}
	return "", false
}
