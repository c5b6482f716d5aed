// Package selection tracks the cascading macro → sector → industry → basic
// industry choice over a classification index.
package selection

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/stockclass/internal/classification"
)

// Level identifies one of the four cascading dropdowns.
type Level int

const (
	LevelMacro Level = iota
	LevelSector
	LevelIndustry
	LevelBasic
)

var levelNames = [...]string{"macro", "sector", "industry", "basic"}

func (l Level) String() string {
	if l < LevelMacro || l > LevelBasic {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps "macro", "sector", "industry" or "basic" to a Level.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown selection level %q", s)
}

// ErrLevelDisabled is returned when a level is set before its prerequisites.
var ErrLevelDisabled = errors.New("selection level is disabled until its parent is selected")

// ErrUnknownBasicCode is returned for a basic industry code that is not
// listed under the selected industry.
var ErrUnknownBasicCode = errors.New("basic industry is not listed under the selected industry")

// Selection is the current choice. A field is only non-empty when every
// field above it is non-empty.
type Selection struct {
	Macro     string `json:"macro"`
	Sector    string `json:"sector"`
	Industry  string `json:"industry"`
	BasicCode string `json:"basic_code"`
}

// Notification is sent to the selection-changed sink. Unset fields are nil.
type Notification struct {
	MacroEconomicSector *string `json:"macro_economic_sector"`
	SectorName          *string `json:"sector_name"`
	IndustryName        *string `json:"industry_name"`
	BasicIndustryName   *string `json:"basic_industry_name"`
}

// LogValue logs the set fields only.
func (n Notification) LogValue() slog.Value {
	var attrs []slog.Attr
	add := func(key string, v *string) {
		if v != nil {
			attrs = append(attrs, slog.String(key, *v))
		}
	}
	add("macro_economic_sector", n.MacroEconomicSector)
	add("sector_name", n.SectorName)
	add("industry_name", n.IndustryName)
	add("basic_industry_name", n.BasicIndustryName)
	return slog.GroupValue(attrs...)
}

type projection struct {
	macro, sector, industry, basicName string
}

func (p projection) notification() Notification {
	return Notification{
		MacroEconomicSector: nullable(p.macro),
		SectorName:          nullable(p.sector),
		IndustryName:        nullable(p.industry),
		BasicIndustryName:   nullable(p.basicName),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Machine enforces the cascade over an index. It is not safe for
// concurrent use; callers serialise access.
type Machine struct {
	idx          *classification.Index
	sel          Selection
	notify       func(Notification)
	onInvalidate func()

	last    projection
	mounted bool
}

// New creates a Machine over idx (nil means an empty index). notify may be
// nil.
func New(idx *classification.Index, notify func(Notification)) *Machine {
	if idx == nil {
		idx = classification.EmptyIndex()
	}
	return &Machine{idx: idx, notify: notify}
}

// OnInvalidate registers fn to run whenever a setter changes the selection
// in a way that makes current search results stale.
func (m *Machine) OnInvalidate(fn func()) {
	m.onInvalidate = fn
}

// Mount clears the selection and unconditionally notifies with the empty
// projection.
func (m *Machine) Mount() {
	m.sel = Selection{}
	m.mounted = true
	m.last = projection{}
	if m.notify != nil {
		m.notify(m.last.notification())
	}
}

// SetIndex swaps the index and clears the selection.
func (m *Machine) SetIndex(idx *classification.Index) {
	if idx == nil {
		idx = classification.EmptyIndex()
	}
	m.idx = idx
	m.sel = Selection{}
	m.invalidate()
	m.emit()
}

// Index returns the current index.
func (m *Machine) Index() *classification.Index { return m.idx }

// Selection returns a copy of the current selection.
func (m *Machine) Selection() Selection { return m.sel }

// SetMacro selects a macro sector and clears everything below it.
func (m *Machine) SetMacro(macro string) {
	m.sel = Selection{Macro: macro}
	m.invalidate()
	m.emit()
}

// SetSector selects a sector and clears industry and basic code.
func (m *Machine) SetSector(sector string) error {
	if sector != "" && !m.Enabled(LevelSector) {
		return ErrLevelDisabled
	}
	m.sel.Sector = sector
	m.sel.Industry = ""
	m.sel.BasicCode = ""
	m.invalidate()
	m.emit()
	return nil
}

// SetIndustry selects an industry and clears the basic code.
func (m *Machine) SetIndustry(industry string) error {
	if industry != "" && !m.Enabled(LevelIndustry) {
		return ErrLevelDisabled
	}
	m.sel.Industry = industry
	m.sel.BasicCode = ""
	m.invalidate()
	m.emit()
	return nil
}

// SetBasicCode selects a basic industry by code. The code must be one of
// BasicOptions; "" clears it.
func (m *Machine) SetBasicCode(code string) error {
	if code != "" {
		if !m.Enabled(LevelBasic) {
			return ErrLevelDisabled
		}
		if _, ok := classification.LookupName(m.BasicOptions(), code); !ok {
			return ErrUnknownBasicCode
		}
	}
	m.sel.BasicCode = code
	m.invalidate()
	m.emit()
	return nil
}

// Set dispatches to the setter for level.
func (m *Machine) Set(level Level, value string) error {
	switch level {
	case LevelMacro:
		m.SetMacro(value)
		return nil
	case LevelSector:
		return m.SetSector(value)
	case LevelIndustry:
		return m.SetIndustry(value)
	case LevelBasic:
		return m.SetBasicCode(value)
	}
	return fmt.Errorf("unknown selection level %v", level)
}

// Enabled reports whether the dropdown for level can be used.
func (m *Machine) Enabled(level Level) bool {
	switch level {
	case LevelMacro:
		return true
	case LevelSector:
		return m.sel.Macro != ""
	case LevelIndustry:
		return m.sel.Macro != "" && m.sel.Sector != ""
	case LevelBasic:
		return m.sel.Macro != "" && m.sel.Sector != "" && m.sel.Industry != ""
	}
	return false
}

func (m *Machine) MacroOptions() []string {
	return m.idx.MacroOptions()
}

func (m *Machine) SectorOptions() []string {
	if !m.Enabled(LevelSector) {
		return []string{}
	}
	return m.idx.SectorsFor(m.sel.Macro)
}

func (m *Machine) IndustryOptions() []string {
	if !m.Enabled(LevelIndustry) {
		return []string{}
	}
	return m.idx.IndustriesFor(m.sel.Macro, m.sel.Sector)
}

func (m *Machine) BasicOptions() []classification.BasicOption {
	if !m.Enabled(LevelBasic) {
		return []classification.BasicOption{}
	}
	return m.idx.BasicsFor(m.sel.Macro, m.sel.Sector, m.sel.Industry)
}

// SelectedBasicName is the display name of the selected basic code, or ""
// when the code is unset or not under the current industry.
func (m *Machine) SelectedBasicName() string {
	if m.sel.BasicCode == "" {
		return ""
	}
	name, _ := classification.LookupName(m.BasicOptions(), m.sel.BasicCode)
	return name
}

// Current returns the notification for the current projection.
func (m *Machine) Current() Notification {
	return m.projection().notification()
}

func (m *Machine) projection() projection {
	return projection{
		macro:     m.sel.Macro,
		sector:    m.sel.Sector,
		industry:  m.sel.Industry,
		basicName: m.SelectedBasicName(),
	}
}

func (m *Machine) invalidate() {
	if m.onInvalidate != nil {
		m.onInvalidate()
	}
}

// emit notifies only when the projection differs from the last one sent.
func (m *Machine) emit() {
	p := m.projection()
	if m.mounted && p == m.last {
		return
	}
	m.mounted = true
	m.last = p
	if m.notify != nil {
		m.notify(p.notification())
	}
}
