// internal/notifications/handlers.go

package notifications

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/auth"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/apperrors"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/utils"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	notifications, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	unread, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{
		"notifications": notifications,
		"unreadCount":   unread,
	}, http.StatusOK)
}

// MarkNotificationRead handles PUT /api/v1/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notificationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	if err := h.service.MarkRead(r.Context(), notificationID, userID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Notification marked as read", http.StatusOK)
}

// MarkAllNotificationsRead handles PUT /api/v1/notifications/read
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.MarkAllRead(r.Context(), userID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "All notifications marked as read", http.StatusOK)
}

// DeleteNotification handles DELETE /api/v1/notifications/{id}
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notificationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), notificationID, userID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Notification deleted", http.StatusOK)
}

// RegisterPushToken handles POST /api/v1/notifications/push-token
func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req PushTokenRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.RegisterPushToken(r.Context(), userID, &req); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Push token registered", http.StatusOK)
}

// UnregisterPushToken handles DELETE /api/v1/notifications/push-token
func (h *Handler) UnregisterPushToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserIDFromContext(r.Context()); !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		utils.ErrorResponse(w, "Token is required", http.StatusBadRequest)
		return
	}

	if err := h.service.UnregisterPushToken(r.Context(), token); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Push token removed", http.StatusOK)
}
