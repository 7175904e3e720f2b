// internal/notifications/routes.go

package notifications

import (
	"github.com/gorilla/mux"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/auth"
)

// RegisterRoutes mounts the notification endpoints under /api/v1/notifications
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	api := router.PathPrefix("/api/v1/notifications").Subrouter()
	api.Use(authMiddleware.Authenticate)

	api.HandleFunc("", handler.ListNotifications).Methods("GET")
	api.HandleFunc("/read", handler.MarkAllNotificationsRead).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}/read", handler.MarkNotificationRead).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}", handler.DeleteNotification).Methods("DELETE")
	api.HandleFunc("/push-token", handler.RegisterPushToken).Methods("POST")
	api.HandleFunc("/push-token", handler.UnregisterPushToken).Methods("DELETE")
}
