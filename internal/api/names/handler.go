package names

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Vasu1712/scenyx-inbox/internal/api/respond"
	"github.com/Vasu1712/scenyx-inbox/internal/models"
	"github.com/Vasu1712/scenyx-inbox/internal/storage"
)

const maxNameLength = 120

// Store is the display-name directory backend.
type Store interface {
	Get(ctx context.Context, id string) (string, error)
	Set(ctx context.Context, id, name string) error
}

type Handler struct {
	Store Store
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	name, err := h.Store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "unknown id")
		return
	}
	if err != nil {
		respond.Internal(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, models.DisplayName{ID: id, DisplayName: name})
}

func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body models.DisplayName
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "invalid request body")
		return
	}
	name := strings.TrimSpace(body.DisplayName)
	if name == "" || len(name) > maxNameLength {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "display_name must be 1-120 bytes")
		return
	}
	if err := h.Store.Set(r.Context(), id, name); err != nil {
		respond.Internal(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, models.DisplayName{ID: id, DisplayName: name})
}

func RegisterNameRoutes(api *mux.Router, h *Handler) {
	api.HandleFunc("/names/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/names/{id}", h.Put).Methods(http.MethodPut)
}
