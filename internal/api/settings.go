package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsevault/pulsevault/internal/datastore"
)

const settingsKeyPrefix = "settings."

type settingsHandler struct {
	ds *datastore.Datastore
}

func (h *settingsHandler) list(w http.ResponseWriter, r *http.Request) {
	values, err := h.ds.GetKeyValues(settingsKeyPrefix + "%")
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *settingsHandler) get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := h.ds.GetKeyValue(settingsKeyPrefix + key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(value))
}

func (h *settingsHandler) set(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", requestIDFrom(r))
		return
	}
	if err := h.ds.SetKeyValue(settingsKeyPrefix+key, string(body)); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *settingsHandler) delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.ds.DeleteKeyValue(settingsKeyPrefix + key); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
