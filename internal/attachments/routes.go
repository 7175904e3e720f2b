// internal/attachments/routes.go

package attachments

import (
	"github.com/gorilla/mux"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/auth"
)

// RegisterRoutes mounts the attachment upload endpoint
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	api := router.PathPrefix("/api/v1/attachments").Subrouter()
	api.Use(authMiddleware.Authenticate)

	api.HandleFunc("", handler.UploadAttachment).Methods("POST")
}
