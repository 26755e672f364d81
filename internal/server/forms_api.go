package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/clinvera/clinvera/internal/editcheck"
	"github.com/clinvera/clinvera/internal/formengine"
	"github.com/clinvera/clinvera/internal/routing"
	"github.com/clinvera/clinvera/pkg/httperr"
)

func handleFormsList(store FormStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forms, err := store.ListForms(r.Context(), strings.TrimSpace(r.URL.Query().Get("studyId")))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if forms == nil {
			forms = []FormDefinition{}
		}
		routing.WriteData(w, http.StatusOK, forms)
	}
}

func handleFormsCreate(forms FormStore, studies StudyStore, codelists CodeListStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		var draft FormDraft
		if !decodeJSON(w, r, &draft) {
			return
		}
		policy, err := validateFormDraft(r.Context(), draft, studies, codelists)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		form, err := forms.CreateForm(r.Context(), NewFormDefinition(draft, policy, actor.ID))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusCreated, form, "form created")
	}
}

func handleFormsGet(store FormStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := store.GetForm(r.Context(), routing.Param(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteData(w, http.StatusOK, form)
	}
}

func handleFormsUpdate(forms FormStore, studies StudyStore, codelists CodeListStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		current, err := forms.GetForm(r.Context(), routing.Param(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		var draft FormDraft
		if !decodeJSON(w, r, &draft) {
			return
		}
		policy, err := validateFormDraft(r.Context(), draft, studies, codelists)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}

		updated := NewFormDefinition(draft, policy, actor.ID)
		updated.ID = current.ID
		updated.Version = current.Version + 1
		updated.CreatedBy = current.CreatedBy
		updated.CreatedAt = current.CreatedAt

		form, err := forms.UpdateForm(r.Context(), updated)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusOK, form, "form updated")
	}
}

func handleFormsDelete(store FormStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteForm(r.Context(), routing.Param(r, "id")); err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusOK, nil, "form deleted")
	}
}

// validateFormDraft rejects structurally broken designs at save time:
// dangling references, duplicate field ids, self-referencing
// dependencies and uncompilable edit checks. Runtime evaluation stays
// permissive; authoring does not.
func validateFormDraft(ctx context.Context, draft FormDraft, studies StudyStore, codelists CodeListStore) (formengine.SubmitPolicy, error) {
	if strings.TrimSpace(draft.OID) == "" {
		return "", httperr.NewBadRequest("oid is required")
	}
	if strings.TrimSpace(draft.Name) == "" {
		return "", httperr.NewBadRequest("name is required")
	}

	policy, ok := formengine.ParseSubmitPolicy(draft.SubmitPolicy)
	if !ok {
		return "", httperr.NewBadRequest("invalid submitPolicy: " + draft.SubmitPolicy)
	}

	studyID := strings.TrimSpace(draft.StudyID)
	if studyID == "" {
		return "", httperr.NewBadRequest("studyId is required")
	}
	if _, err := studies.GetStudy(ctx, studyID); err != nil {
		if httperr.IsNotFound(err) {
			return "", httperr.NewBadRequest("studyId references unknown study: " + studyID)
		}
		return "", err
	}

	fields := draft.Spec.Fields()
	if len(fields) == 0 {
		return "", httperr.NewBadRequest("spec must declare at least one field")
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.FieldID) == "" {
			return "", httperr.NewBadRequest("fieldId is required")
		}
		if seen[f.FieldID] {
			return "", httperr.NewBadRequest("duplicate fieldId: " + f.FieldID)
		}
		seen[f.FieldID] = true
	}

	for _, f := range fields {
		for _, dep := range f.Dependencies {
			if dep.DependentFieldID == f.FieldID {
				return "", httperr.NewBadRequest("field depends on itself: " + f.FieldID)
			}
			if !seen[dep.DependentFieldID] {
				return "", httperr.NewBadRequest("dependency references unknown field: " + dep.DependentFieldID)
			}
		}
		if f.CodeListCode != "" {
			if _, err := codelists.GetCodeList(ctx, f.CodeListCode); err != nil {
				if httperr.IsNotFound(err) {
					return "", httperr.NewBadRequest("field " + f.FieldID + " references unknown codelist: " + f.CodeListCode)
				}
				return "", err
			}
		}
	}

	checkIDs := make(map[string]bool, len(draft.EditChecks))
	for _, c := range draft.EditChecks {
		if strings.TrimSpace(c.CheckID) == "" {
			return "", httperr.NewBadRequest("checkId is required")
		}
		if checkIDs[c.CheckID] {
			return "", httperr.NewBadRequest("duplicate checkId: " + c.CheckID)
		}
		checkIDs[c.CheckID] = true
		if err := editcheck.Compile(c.Expr); err != nil {
			return "", httperr.NewBadRequest("edit check " + c.CheckID + ": " + err.Error())
		}
	}

	return policy, nil
}

type evaluateRequest struct {
	Values formengine.FormValues `json:"values"`
}

type explainRequest struct {
	FieldID string                `json:"fieldId,omitempty"`
	Values  formengine.FormValues `json:"values"`
}

type submitRequest struct {
	Values formengine.FormValues `json:"values"`
	Policy string                `json:"policy,omitempty"`
}

type explainResponse struct {
	FormID string             `json:"formId"`
	Fields []fieldExplanation `json:"fields"`
}

type fieldExplanation struct {
	FieldID      string                       `json:"fieldId"`
	Outcome      formengine.Outcome           `json:"outcome"`
	Dependencies []formengine.DependencyTrace `json:"dependencies,omitempty"`
}

// handleFormsEvaluate returns the derived state of every field for one
// values snapshot. Pure: nothing is persisted.
func handleFormsEvaluate(store FormStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := store.GetForm(r.Context(), routing.Param(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		var req evaluateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		routing.WriteData(w, http.StatusOK, formengine.EvaluateForm(form.Spec, req.Values))
	}
}

// handleFormsExplain traces every dependency predicate alongside the
// derived outcome, for rule debugging.
func handleFormsExplain(store FormStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := store.GetForm(r.Context(), routing.Param(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		var req explainRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.FieldID != "" {
			if _, ok := form.Spec.Field(req.FieldID); !ok {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_request", "unknown fieldId: "+req.FieldID)
				return
			}
		}

		resp := explainResponse{FormID: form.ID}
		for _, f := range form.Spec.Fields() {
			if req.FieldID != "" && f.FieldID != req.FieldID {
				continue
			}
			outcome, traces := formengine.ExplainField(f, req.Values)
			resp.Fields = append(resp.Fields, fieldExplanation{
				FieldID:      f.FieldID,
				Outcome:      outcome,
				Dependencies: traces,
			})
		}
		routing.WriteData(w, http.StatusOK, resp)
	}
}

type submitRejection struct {
	FieldErrors map[string][]string   `json:"fieldErrors,omitempty"`
	EditChecks  []editcheck.Violation `json:"editChecks,omitempty"`
}

// handleFormsSubmit validates a values snapshot under the form's (or
// request-overridden) policy and persists it when clean. A rejected
// submission returns the full violation detail; nothing is stored.
func handleFormsSubmit(forms FormStore, submissions SubmissionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		form, err := forms.GetForm(r.Context(), routing.Param(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		var req submitRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		policy := form.SubmitPolicy
		if req.Policy != "" {
			p, ok := formengine.ParseSubmitPolicy(req.Policy)
			if !ok {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_request", "invalid policy: "+req.Policy)
				return
			}
			policy = p
		}

		fieldErrors := formengine.ValidateSubmission(form.Spec, req.Values, policy)
		checkViolations := blockingEditChecks(editcheck.Evaluate(form.EditChecks, req.Values))
		if len(fieldErrors) > 0 || len(checkViolations) > 0 {
			routing.WriteErrorDetail(w, http.StatusBadRequest, "validation_failed", "submission rejected",
				submitRejection{FieldErrors: fieldErrors, EditChecks: checkViolations})
			return
		}

		sub, err := submissions.CreateSubmission(r.Context(), NewSubmission(form, req.Values, policy, actor.ID))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusCreated, sub, "submission accepted")
	}
}

// blockingEditChecks drops WARNING-severity violations; only errors
// block a submission.
func blockingEditChecks(violations []editcheck.Violation) []editcheck.Violation {
	var out []editcheck.Violation
	for _, v := range violations {
		if v.Severity == editcheck.SeverityError {
			out = append(out, v)
		}
	}
	return out
}
