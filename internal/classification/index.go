package classification

import "strings"

// BasicOption is a selectable basic industry.
type BasicOption struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// children is an insertion-ordered set of named child nodes.
type children[T any] struct {
	names  []string
	byName map[string]T
}

func (c *children[T]) lookup(name string) (T, bool) {
	v, ok := c.byName[name]
	return v, ok
}

// ensure returns the child called name, creating it with mk if absent.
func (c *children[T]) ensure(name string, mk func() T) T {
	if v, ok := c.byName[name]; ok {
		return v
	}
	if c.byName == nil {
		c.byName = make(map[string]T)
	}
	v := mk()
	c.byName[name] = v
	c.names = append(c.names, name)
	return v
}

func (c *children[T]) len() int { return len(c.names) }

type macroNode struct{ sectors children[*sectorNode] }

type sectorNode struct{ industries children[*industryNode] }

type industryNode struct{ basics children[string] }

func newMacroNode() *macroNode       { return &macroNode{} }
func newSectorNode() *sectorNode     { return &sectorNode{} }
func newIndustryNode() *industryNode { return &industryNode{} }

// Index is a read-only macro → sector → industry → basic industry tree.
// Listings are sorted on every call; the tree itself keeps insertion order.
type Index struct {
	macros children[*macroNode]
}

// Stats counts the nodes at each level of an Index.
type Stats struct {
	Macros     int `json:"macros"`
	Sectors    int `json:"sectors"`
	Industries int `json:"industries"`
	Basics     int `json:"basics"`
}

// EmptyIndex returns an index with no options at any level.
func EmptyIndex() *Index { return &Index{} }

// BuildIndex builds the lookup tree from a payload. The relational shape is
// used when all four collections are present, otherwise the flat rows. A
// payload with neither yields an empty index.
func BuildIndex(p Payload) *Index {
	idx := &Index{}
	switch {
	case p.IsRelational():
		idx.addRelational(p)
	case p.Rows != nil:
		idx.addFlat(p.Rows)
	}
	return idx
}

type sectorRef struct {
	name      string
	macroCode string
}

type industryRef struct {
	name       string
	sectorCode string
}

// addRelational joins the four collections by code. Every named macro is
// listed even when none of its basic industries resolve; a basic industry
// is inserted only when its whole ancestor chain resolves.
func (idx *Index) addRelational(p Payload) {
	macroByCode := make(map[string]string, len(p.MacroSectors))
	for _, m := range p.MacroSectors {
		code, name := clean(m.Code), clean(m.Name)
		if name == "" {
			continue
		}
		idx.macros.ensure(name, newMacroNode)
		if code != "" {
			macroByCode[code] = name
		}
	}

	sectorByCode := make(map[string]sectorRef, len(p.Sectors))
	for _, s := range p.Sectors {
		code, name, parent := clean(s.Code), clean(s.Name), clean(s.MacroCode)
		if code != "" && name != "" && parent != "" {
			sectorByCode[code] = sectorRef{name: name, macroCode: parent}
		}
	}

	industryByCode := make(map[string]industryRef, len(p.Industries))
	for _, in := range p.Industries {
		code, name, parent := clean(in.Code), clean(in.Name), clean(in.SectorCode)
		if code != "" && name != "" && parent != "" {
			industryByCode[code] = industryRef{name: name, sectorCode: parent}
		}
	}

	for _, b := range p.BasicIndustries {
		name, code, parent := clean(b.Name), clean(b.Code), clean(b.IndustryCode)
		if name == "" || code == "" || parent == "" {
			continue
		}
		industry, ok := industryByCode[parent]
		if !ok {
			continue
		}
		sector, ok := sectorByCode[industry.sectorCode]
		if !ok {
			continue
		}
		macro, ok := macroByCode[sector.macroCode]
		if !ok {
			continue
		}
		idx.insert(macro, sector.name, industry.name, name, code)
	}
}

func (idx *Index) addFlat(rows []FlatRow) {
	for _, r := range rows {
		macro, sector, industry, basic := clean(r.Macro), clean(r.Sector), clean(r.Industry), clean(r.Basic)
		if macro == "" || sector == "" || industry == "" || basic == "" {
			continue
		}
		idx.insert(macro, sector, industry, basic, basic)
	}
}

// insert adds one fully resolved path. The first code seen for a basic
// name under an industry wins.
func (idx *Index) insert(macro, sector, industry, basic, code string) {
	m := idx.macros.ensure(macro, newMacroNode)
	s := m.sectors.ensure(sector, newSectorNode)
	in := s.industries.ensure(industry, newIndustryNode)
	in.basics.ensure(basic, func() string { return code })
}

// MacroOptions lists every macro sector.
func (idx *Index) MacroOptions() []string {
	return SortNames(idx.macros.names)
}

// SectorsFor lists the sectors under macro, or none if macro is unknown.
func (idx *Index) SectorsFor(macro string) []string {
	m, ok := idx.macros.lookup(macro)
	if !ok {
		return []string{}
	}
	return SortNames(m.sectors.names)
}

// IndustriesFor lists the industries under macro/sector.
func (idx *Index) IndustriesFor(macro, sector string) []string {
	s, ok := idx.sector(macro, sector)
	if !ok {
		return []string{}
	}
	return SortNames(s.industries.names)
}

// BasicsFor lists the basic industries under macro/sector/industry.
func (idx *Index) BasicsFor(macro, sector, industry string) []BasicOption {
	s, ok := idx.sector(macro, sector)
	if !ok {
		return []BasicOption{}
	}
	in, ok := s.industries.lookup(industry)
	if !ok {
		return []BasicOption{}
	}
	opts := make([]BasicOption, 0, in.basics.len())
	for _, name := range in.basics.names {
		opts = append(opts, BasicOption{Name: name, Code: in.basics.byName[name]})
	}
	return SortOptions(opts)
}

func (idx *Index) sector(macro, sector string) (*sectorNode, bool) {
	m, ok := idx.macros.lookup(macro)
	if !ok {
		return nil, false
	}
	return m.sectors.lookup(sector)
}

// Stats reports node counts per level.
func (idx *Index) Stats() Stats {
	var st Stats
	st.Macros = idx.macros.len()
	for _, m := range idx.macros.byName {
		st.Sectors += m.sectors.len()
		for _, s := range m.sectors.byName {
			st.Industries += s.industries.len()
			for _, in := range s.industries.byName {
				st.Basics += in.basics.len()
			}
		}
	}
	return st
}

func clean(t Text) string {
	return strings.TrimSpace(string(t))
}
