package uploads

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/scenyx-inbox/internal/api/respond"
	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

// Handler is the blob store: it accepts raw image and video bodies, stores
// them under a random name and serves them back.
type Handler struct {
	Dir       string
	MaxBytes  int64
	PublicURL string
}

func mediaTypeOf(mime *mimetype.MIME) (models.MediaType, bool) {
	for m := mime; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return models.MediaImage, true
		case strings.HasPrefix(m.String(), "video/"):
			return models.MediaVideo, true
		}
	}
	return "", false
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respond.Error(w, http.StatusRequestEntityTooLarge, respond.CodeSizeExceeded, "file exceeds the upload limit")
			return
		}
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "could not read upload")
		return
	}
	if len(data) == 0 {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "empty upload")
		return
	}

	mime := mimetype.Detect(data)
	mediaType, ok := mediaTypeOf(mime)
	if !ok {
		respond.Error(w, http.StatusUnsupportedMediaType, respond.CodeTypeRejected, "only images and videos are accepted, got "+mime.String())
		return
	}
	log := zerolog.Ctx(r.Context())
	if hint := r.Header.Get("Content-Type"); hint != "" && !mime.Is(hint) {
		log.Debug().Str("hint", hint).Str("detected", mime.String()).Msg("Upload content type differs from hint")
	}

	name := uuid.NewString() + mime.Extension()
	if err := os.WriteFile(filepath.Join(h.Dir, name), data, 0o644); err != nil {
		respond.Internal(w, r, err)
		return
	}
	log.Info().Str("name", name).Int("bytes", len(data)).Str("mime", mime.String()).Msg("Stored upload")
	respond.JSON(w, http.StatusCreated, models.UploadResult{
		URL:       strings.TrimRight(h.PublicURL, "/") + "/uploads/" + name,
		MediaType: mediaType,
		MIME:      mime.String(),
	})
}

// Serve returns a stored object. Names are generated by Upload, so anything
// that is not a uuid plus extension is unknown.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if _, err := uuid.Parse(stem); err != nil || name != filepath.Base(name) {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "no such upload")
		return
	}
	path := filepath.Join(h.Dir, name)
	if _, err := os.Stat(path); err != nil {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "no such upload")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, path)
}

// RegisterUploadRoutes mounts the upload endpoint on the authenticated API
// router and the object server on the public root router.
func RegisterUploadRoutes(api, public *mux.Router, h *Handler) {
	api.HandleFunc("/uploads", h.Upload).Methods(http.MethodPost)
	public.HandleFunc("/uploads/{name}", h.Serve).Methods(http.MethodGet)
}
