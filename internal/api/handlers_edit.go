package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleEditOpen(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil {
		jsonError(w, "invalid row", http.StatusBadRequest)
		return
	}

	wf := sessionFrom(r.Context()).Workflow
	if err := wf.OpenEdit(r.Context(), row); err != nil {
		if errors.Is(err, workflow.ErrRowNotFound) {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	backToPage(w, r)
}

func (s *Server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	wf := sessionFrom(r.Context()).Workflow
	if err := applyDraftForm(wf, r); err != nil {
		draftError(w, err)
		return
	}
	backToPage(w, r)
}

func (s *Server) handleEditCancel(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r.Context()).Workflow.CancelEdit()
	backToPage(w, r)
}

// handleEditSubmit applies the posted form to the draft and submits it.
// Validation and server failures stay on the draft and show in the page.
func (s *Server) handleEditSubmit(w http.ResponseWriter, r *http.Request) {
	wf := sessionFrom(r.Context()).Workflow
	if err := applyDraftForm(wf, r); err != nil {
		draftError(w, err)
		return
	}

	if err := wf.SubmitEdit(r.Context()); errors.Is(err, workflow.ErrNoDraft) {
		draftError(w, err)
		return
	}
	backToPage(w, r)
}

// applyDraftForm copies the draft fields present in the form to the open
// draft. Absent fields are left alone.
func applyDraftForm(wf *workflow.Workflow, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	var u workflow.DraftUpdate
	if _, ok := r.PostForm["company_name"]; ok {
		v := r.PostForm.Get("company_name")
		u.CompanyName = &v
	}
	if _, ok := r.PostForm["market_cap_category"]; ok {
		v := r.PostForm.Get("market_cap_category")
		u.MarketCap = &v
	}
	if _, ok := r.PostForm["basic_ind_code"]; ok {
		v := r.PostForm.Get("basic_ind_code")
		u.BasicCode = &v
	}
	return wf.UpdateDraft(u)
}

func draftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNoDraft):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, workflow.ErrDraftBusy):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		jsonError(w, err.Error(), http.StatusBadRequest)
	}
}
