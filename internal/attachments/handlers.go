// internal/attachments/handlers.go

package attachments

import (
	"net/http"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/auth"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/utils"
)

type Handler struct {
	storage     StorageService
	maxFileSize int64
}

func NewHandler(storage StorageService, maxFileSize int64) *Handler {
	return &Handler{storage: storage, maxFileSize: maxFileSize}
}

// UploadAttachment handles POST /api/v1/attachments. The returned URL is what
// clients place in a message's attachments array.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserIDFromContext(r.Context()); !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		utils.ErrorResponse(w, "File too large or malformed form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.ErrorResponse(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if AttachmentKind(contentType) == "" {
		utils.ErrorResponse(w, "Unsupported file type", http.StatusBadRequest)
		return
	}

	upload, err := h.storage.Upload(r.Context(), file, header.Filename, contentType)
	if err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	utils.SuccessResponse(w, upload, http.StatusCreated)
}
