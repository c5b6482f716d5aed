package workflow

import (
	"slices"

	"github.com/dgallion1/stockclass/internal/classification"
	"github.com/dgallion1/stockclass/internal/selection"
)

// State is a read-only snapshot of everything a presentation layer renders.
type State struct {
	Selection         selection.Selection    `json:"selection"`
	SelectedBasicName string                 `json:"selected_basic_name"`
	Notification      selection.Notification `json:"notification"`

	MacroOptions    []string                     `json:"macro_options"`
	SectorOptions   []string                     `json:"sector_options"`
	IndustryOptions []string                     `json:"industry_options"`
	BasicOptions    []classification.BasicOption `json:"basic_options"`

	MacroEnabled    bool `json:"macro_enabled"`
	SectorEnabled   bool `json:"sector_enabled"`
	IndustryEnabled bool `json:"industry_enabled"`
	BasicEnabled    bool `json:"basic_enabled"`
	SearchEnabled   bool `json:"search_enabled"`

	LoadStatus Status `json:"load_status"`
	LoadError  string `json:"load_error,omitempty"`

	SearchStatus Status                    `json:"search_status"`
	SearchError  string                    `json:"search_error,omitempty"`
	SearchedCode string                    `json:"searched_code,omitempty"`
	Rows         []classification.StockRow `json:"rows"`
	Count        int                       `json:"count"`

	CatalogStatus Status                       `json:"catalog_status"`
	CatalogError  string                       `json:"catalog_error,omitempty"`
	Catalog       []classification.BasicOption `json:"catalog"`

	Draft      *EditDraft `json:"draft,omitempty"`
	MarketCaps []string   `json:"market_caps"`
}

// State returns a snapshot of the workflow.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.unlock()

	controls := w.loadStatus != StatusLoading && w.loadStatus != StatusError
	sel := w.sel.Selection()
	st := State{
		Selection:         sel,
		SelectedBasicName: w.sel.SelectedBasicName(),
		Notification:      w.last,

		MacroOptions:    w.sel.MacroOptions(),
		SectorOptions:   w.sel.SectorOptions(),
		IndustryOptions: w.sel.IndustryOptions(),
		BasicOptions:    w.sel.BasicOptions(),

		MacroEnabled:    controls,
		SectorEnabled:   controls && w.sel.Enabled(selection.LevelSector),
		IndustryEnabled: controls && w.sel.Enabled(selection.LevelIndustry),
		BasicEnabled:    controls && w.sel.Enabled(selection.LevelBasic),
		SearchEnabled:   sel.BasicCode != "" && w.searchStatus != StatusLoading,

		LoadStatus:   w.loadStatus,
		SearchStatus: w.searchStatus,
		SearchedCode: w.searchedCode,
		Rows:         slices.Clone(w.rows),
		Count:        w.count,

		CatalogStatus: w.catalogStatus,
		Catalog:       slices.Clone(w.catalog),

		MarketCaps: slices.Clone(classification.MarketCaps),
	}
	if st.Rows == nil {
		st.Rows = []classification.StockRow{}
	}
	if st.Catalog == nil {
		st.Catalog = []classification.BasicOption{}
	}
	if w.loadStatus == StatusError {
		st.LoadError = MsgLoadFailed
	}
	if w.searchStatus == StatusError {
		st.SearchError = MsgSearchFailed
	}
	if w.catalogStatus == StatusError {
		st.CatalogError = MsgCatalogFailed
		if w.catalogErr != nil {
			st.CatalogError = w.catalogErr.Error()
		}
	}
	if w.draft != nil {
		d := *w.draft
		st.Draft = &d
	}
	return st
}
