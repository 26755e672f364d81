package server

import (
	"net/http"

	"github.com/clinvera/clinvera/internal/routing"
	"github.com/clinvera/clinvera/pkg/httperr"
)

func handleCodeListsList(store CodeListStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lists, err := store.ListCodeLists(r.Context())
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if lists == nil {
			lists = []CodeList{}
		}
		routing.WriteData(w, http.StatusOK, lists)
	}
}

func handleCodeListsCreate(store CodeListStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		var draft CodeListDraft
		if !decodeJSON(w, r, &draft) {
			return
		}
		if _, err := store.GetCodeList(r.Context(), draft.Code); err == nil {
			writeStoreError(w, r, httperr.NewConflict("codelist already exists: "+draft.Code))
			return
		} else if !httperr.IsNotFound(err) {
			writeStoreError(w, r, err)
			return
		}
		cl, _, err := store.PutCodeList(r.Context(), draft, actor.ID)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusCreated, cl, "codelist created")
	}
}

// handleCodeListsReplace replaces an existing list wholesale. The path
// code wins over any code in the body.
func handleCodeListsReplace(store CodeListStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		code := routing.Param(r, "code")
		if _, err := store.GetCodeList(r.Context(), code); err != nil {
			writeStoreError(w, r, err)
			return
		}
		var draft CodeListDraft
		if !decodeJSON(w, r, &draft) {
			return
		}
		draft.Code = code
		cl, _, err := store.PutCodeList(r.Context(), draft, actor.ID)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusOK, cl, "codelist replaced")
	}
}

func handleCodeListsGet(store CodeListStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cl, err := store.GetCodeList(r.Context(), routing.Param(r, "code"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteData(w, http.StatusOK, cl)
	}
}

func handleCodeListsDelete(store CodeListStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteCodeList(r.Context(), routing.Param(r, "code")); err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusOK, nil, "codelist deleted")
	}
}
