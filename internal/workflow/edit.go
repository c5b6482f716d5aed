package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/stockclass/internal/classapi"
	"github.com/dgallion1/stockclass/internal/classification"
)

var (
	ErrNoDraft   = errors.New("no edit in progress")
	ErrDraftBusy = errors.New("edit is being submitted")
)

// DraftStatus is the state of an open edit.
type DraftStatus string

const (
	DraftOpen       DraftStatus = "open"
	DraftSubmitting DraftStatus = "submitting"
)

// EditDraft is the editable copy of one result row.
type EditDraft struct {
	CompanyID   string      `json:"company_id"`
	CompanyName string      `json:"company_name"`
	MarketCap   string      `json:"market_cap_category"`
	BasicCode   string      `json:"basic_ind_code"`
	BasicName   string      `json:"basic_industry_name"`
	Status      DraftStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	ErrorField  string      `json:"error_field,omitempty"`
}

// DraftUpdate changes the non-nil fields of the open draft.
type DraftUpdate struct {
	CompanyName *string
	MarketCap   *string
	BasicCode   *string
}

// ValidationError names the first draft field that blocks submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// validate checks, in order, the company id, name, market cap and basic
// industry, and returns the resolved company id.
func (d *EditDraft) validate() (int64, *ValidationError) {
	id, ok := classification.ParseCompanyID(d.CompanyID)
	if !ok {
		return 0, &ValidationError{Field: "company_id", Message: "Company ID is missing or invalid."}
	}
	if strings.TrimSpace(d.CompanyName) == "" {
		return 0, &ValidationError{Field: "company_name", Message: "Company name is required."}
	}
	if !classification.IsMarketCap(d.MarketCap) {
		return 0, &ValidationError{Field: "market_cap_category", Message: "Select a market cap category."}
	}
	if strings.TrimSpace(d.BasicCode) == "" {
		return 0, &ValidationError{Field: "basic_ind_code", Message: "Select a basic industry."}
	}
	return id, nil
}

// FindRow returns the position of the result row whose company id is
// companyID.
func (w *Workflow) FindRow(companyID string) (int, bool) {
	w.mu.Lock()
	defer w.unlock()
	want := strings.TrimSpace(companyID)
	for i, r := range w.rows {
		if strings.TrimSpace(string(r.CompanyID)) == want {
			return i, true
		}
	}
	return -1, false
}

// OpenEdit opens a draft for the result row at position row and starts the
// lazy catalog load. A catalog failure is recorded in the state, not
// returned.
func (w *Workflow) OpenEdit(ctx context.Context, row int) error {
	w.mu.Lock()
	if row < 0 || row >= len(w.rows) {
		w.unlock()
		return ErrRowNotFound
	}
	r := w.rows[row]
	d := &EditDraft{
		CompanyID:   strings.TrimSpace(string(r.CompanyID)),
		CompanyName: string(r.CompanyName),
		MarketCap:   classification.NormalizeMarketCap(string(r.MarketCapCategory)),
		BasicCode:   strings.TrimSpace(string(r.BasicIndCode)),
		BasicName:   strings.TrimSpace(string(r.BasicIndustryName)),
		Status:      DraftOpen,
	}
	if d.BasicCode == "" {
		d.BasicCode = w.searchedCode
		d.BasicName = ""
	}
	if d.BasicName == "" {
		d.BasicName, _ = classification.LookupName(w.catalog, d.BasicCode)
	}
	w.draft = d
	w.unlock()

	_ = w.LoadCatalog(ctx)
	return nil
}

// UpdateDraft edits the open draft.
func (w *Workflow) UpdateDraft(u DraftUpdate) error {
	w.mu.Lock()
	defer w.unlock()
	d := w.draft
	if d == nil {
		return ErrNoDraft
	}
	if d.Status == DraftSubmitting {
		return ErrDraftBusy
	}
	if u.CompanyName != nil {
		d.CompanyName = *u.CompanyName
	}
	if u.MarketCap != nil {
		d.MarketCap = classification.NormalizeMarketCap(*u.MarketCap)
	}
	if u.BasicCode != nil && *u.BasicCode != d.BasicCode {
		d.BasicCode = strings.TrimSpace(*u.BasicCode)
		d.BasicName, _ = classification.LookupName(w.catalog, d.BasicCode)
	}
	d.Error, d.ErrorField = "", ""
	return nil
}

// CancelEdit discards the open draft.
func (w *Workflow) CancelEdit() {
	w.mu.Lock()
	defer w.unlock()
	w.draft = nil
}

// SubmitEdit validates the draft and sends the update. On success the
// matching result row is patched from the server response, or removed when
// it no longer belongs to the searched basic industry, and a best-effort
// refresh of the results follows in the background. On failure the draft
// stays open with the error attached.
func (w *Workflow) SubmitEdit(ctx context.Context) error {
	w.mu.Lock()
	d := w.draft
	if d == nil {
		w.unlock()
		return ErrNoDraft
	}
	if d.Status == DraftSubmitting {
		w.unlock()
		return nil
	}
	id, verr := d.validate()
	if verr != nil {
		d.Error, d.ErrorField = verr.Message, verr.Field
		w.unlock()
		return verr
	}
	d.Status = DraftSubmitting
	d.Error, d.ErrorField = "", ""
	req := classapi.UpdateRequest{
		CompanyName:       strings.TrimSpace(d.CompanyName),
		BasicIndCode:      strings.TrimSpace(d.BasicCode),
		MarketCapCategory: d.MarketCap,
	}
	w.unlock()

	updated, err := w.client.UpdateStock(ctx, id, req)

	w.mu.Lock()
	if err != nil {
		canceled := errors.Is(err, context.Canceled)
		if w.draft == d {
			d.Status = DraftOpen
			if !canceled {
				d.Error = submissionMessage(err)
			}
		}
		w.unlock()
		if canceled {
			return nil
		}
		w.log.Warn("stock update rejected", "company_id", id, "error", err)
		return fmt.Errorf("update stock %d: %w", id, err)
	}

	c := w.confirm(id, req, updated)
	if w.draft == d {
		w.draft = nil
	}
	removed := w.applyConfirmed(c)
	if w.searchedCode != "" {
		w.refreshLocked(w.searchedCode, w.searchSeq, c)
	}
	w.unlock()

	w.log.Info("stock updated",
		"company_id", id,
		"basic_ind_code", c.code,
		"removed_from_results", removed,
	)
	return nil
}

func submissionMessage(err error) string {
	if detail := classapi.Detail(err); detail != "" {
		return detail
	}
	return MsgUpdateFailed
}

// confirmedEdit is the server-confirmed outcome of an update.
type confirmedEdit struct {
	id        int64
	name      string
	marketCap string
	code      string
	basicName string
}

// confirm merges the server response over the submitted values. Caller
// holds the lock.
func (w *Workflow) confirm(id int64, req classapi.UpdateRequest, updated classification.StockRow) confirmedEdit {
	c := confirmedEdit{
		id:        id,
		name:      firstNonEmpty(string(updated.CompanyName), req.CompanyName),
		marketCap: firstNonEmpty(string(updated.MarketCapCategory), req.MarketCapCategory),
		code:      firstNonEmpty(string(updated.BasicIndCode), req.BasicIndCode),
		basicName: strings.TrimSpace(string(updated.BasicIndustryName)),
	}
	if c.basicName == "" {
		c.basicName, _ = classification.LookupName(w.catalog, c.code)
	}
	return c
}

// applyConfirmed patches or removes the edited row and reports whether it
// was removed. Caller holds the lock.
func (w *Workflow) applyConfirmed(c confirmedEdit) bool {
	i := w.findRow(c.id)
	if i < 0 {
		return false
	}
	if w.searchedCode != "" && c.code != w.searchedCode {
		w.rows = slices.Delete(w.rows, i, i+1)
		if w.count > 0 {
			w.count--
		}
		return true
	}
	r := &w.rows[i]
	r.CompanyName = classification.Text(c.name)
	r.MarketCapCategory = classification.Text(c.marketCap)
	r.BasicIndCode = classification.Text(c.code)
	if c.basicName != "" {
		r.BasicIndustryName = classification.Text(c.basicName)
	}
	return false
}

// refreshLocked re-runs the search for code in the background. The
// reconciled view is kept if the refresh fails or the results moved on
// meanwhile; the confirmed edit is re-applied over refreshed rows. Nothing
// starts once the workflow is closing. Caller holds the lock.
func (w *Workflow) refreshLocked(code string, seq uint64, c confirmedEdit) {
	if w.refreshCtx.Err() != nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(w.refreshCtx, w.refreshTimeout)
		defer cancel()

		page, err := w.client.Stocks(ctx, code)

		w.mu.Lock()
		defer w.unlock()
		if err != nil {
			w.log.Debug("background refresh failed, keeping reconciled results", "basic_ind_code", code, "error", err)
			return
		}
		if seq != w.searchSeq || w.searchedCode != code {
			return
		}
		w.applyPage(code, page)
		w.applyConfirmed(c)
	}()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
