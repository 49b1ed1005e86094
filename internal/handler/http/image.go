package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marketa/catalog/internal/service"
	apperrors "github.com/marketa/catalog/pkg/errors"
	"github.com/marketa/catalog/pkg/httputil"
)

// ImageHandler exposes the image mutation endpoints. Uploads arrive as
// multipart form data under repeated "images" fields.
type ImageHandler struct {
	images         *service.ImageService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewImageHandler creates a new image handler.
func NewImageHandler(images *service.ImageService, maxUploadBytes int64, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{images: images, maxUploadBytes: maxUploadBytes, logger: logger}
}

// Add handles POST /products/{id}/images. A partial upload failure returns
// 502 with per-file outcomes and persists nothing.
func (h *ImageHandler) Add(w http.ResponseWriter, r *http.Request) {
	files, ok := h.readUploads(w, r)
	if !ok {
		return
	}

	product, err := h.images.AddImages(r.Context(), chi.URLParam(r, "id"), files)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: product})
}

// Delete handles DELETE /products/{id}/images/{imageID}.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	product, err := h.images.DeleteImage(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "imageID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// Replace handles PUT /products/{id}/images. The "delete_ids" form field
// carries a JSON array of image ids to remove; new files ride alongside in
// "images" fields. Delete failures are reported per id without failing the
// request.
func (h *ImageHandler) Replace(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid multipart form: "+err.Error()), h.logger)
		return
	}

	var deleteIDs []string
	if raw := r.FormValue("delete_ids"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &deleteIDs); err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("delete_ids must be a JSON array of image ids"), h.logger)
			return
		}
	}

	files, err := collectUploads(r.MultipartForm.File["images"])
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if len(deleteIDs) == 0 && len(files) == 0 {
		httputil.WriteError(w, r, apperrors.InvalidInput("nothing to replace: provide delete_ids, images, or both"), h.logger)
		return
	}

	result, err := h.images.ReplaceImages(r.Context(), chi.URLParam(r, "id"), deleteIDs, files)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// readUploads parses the multipart form and collects the "images" files. On
// failure it writes the error response and reports false.
func (h *ImageHandler) readUploads(w http.ResponseWriter, r *http.Request) ([]service.ImageUpload, bool) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid multipart form: "+err.Error()), h.logger)
		return nil, false
	}

	files, err := collectUploads(r.MultipartForm.File["images"])
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, false
	}

	if len(files) == 0 {
		httputil.WriteError(w, r, apperrors.InvalidInput("at least one image file is required"), h.logger)
		return nil, false
	}

	return files, true
}

func collectUploads(headers []*multipart.FileHeader) ([]service.ImageUpload, error) {
	files := make([]service.ImageUpload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, apperrors.InvalidInput("open uploaded file " + header.Filename + ": " + err.Error())
		}

		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, apperrors.InvalidInput("read uploaded file " + header.Filename + ": " + err.Error())
		}

		files = append(files, service.ImageUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}
