// internal/chat/handlers.go
// HTTP surface of the chat core. Message sending goes through the same
// service path as the realtime events; the handler only adds transport.

package chat

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/auth"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/apperrors"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/utils"
)

type Handler struct {
	service     Service
	hub         *Hub
	authService auth.Service
	upgrader    websocket.Upgrader
}

func NewHandler(service Service, hub *Hub, authService auth.Service, allowedOrigins []string) *Handler {
	return &Handler{
		service:     service,
		hub:         hub,
		authService: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS handles GET /ws. The token rides the query string because browser
// websocket clients cannot set custom headers on the handshake.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r)
	if token == "" {
		utils.ErrorResponse(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authService.ValidateToken(r.Context(), token)
	if err != nil {
		utils.ErrorResponse(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for user %d: %v", claims.UserID, err)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.Username, claims.DisplayName)
	h.hub.Register(client)
	client.Start()
}

// OpenPrivateChat handles POST /api/v1/chat/private
func (h *Handler) OpenPrivateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req OpenPrivateChatRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	chat, created, err := h.service.OpenPrivateChat(r.Context(), userID, req.RecipientID)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.SuccessResponse(w, chat, status)
}

// SendMessage handles POST /api/v1/chat/messages. This is the fallback send
// path for clients without a live connection; delivery semantics are
// identical to the realtime path because both call the same service method
// and the same fan-out.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.service.SendMessage(r.Context(), userID, &req)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	h.hub.EmitMessage(r.Context(), message)
	utils.SuccessResponse(w, message, http.StatusCreated)
}

// ListMessages handles GET /api/v1/chat/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chatType := r.URL.Query().Get("chatType")
	if !ValidChatType(chatType) {
		utils.ErrorResponse(w, "Invalid chat type", http.StatusBadRequest)
		return
	}
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chatId"), 10, 64)
	if err != nil || chatID <= 0 {
		utils.ErrorResponse(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := h.service.ListMessages(r.Context(), userID, ChatType(chatType), chatID, limit, offset)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.SuccessResponse(w, messages, http.StatusOK)
}

// MarkMessageRead handles PUT /api/v1/chat/messages/{id}/read
func (h *Handler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	appended, err := h.service.MarkMessageRead(r.Context(), messageID, userID)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.SuccessResponse(w, map[string]bool{"read": appended}, http.StatusOK)
}

// MarkChatRead handles PUT /api/v1/chat/messages/read
func (h *Handler) MarkChatRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req MarkChatReadRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.MarkChatRead(r.Context(), userID, ChatType(req.ChatType), req.ChatID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Chat marked as read", http.StatusOK)
}

// DeleteMessage handles DELETE /api/v1/chat/messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	if _, err := h.service.DeleteMessage(r.Context(), messageID, userID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Message deleted", http.StatusOK)
}

// BlockPeer handles PUT /api/v1/chat/private/{id}/block
func (h *Handler) BlockPeer(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

// UnblockPeer handles PUT /api/v1/chat/private/{id}/unblock
func (h *Handler) UnblockPeer(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, block bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chatID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}

	if block {
		err = h.service.BlockPeer(r.Context(), chatID, userID)
	} else {
		err = h.service.UnblockPeer(r.Context(), chatID, userID)
	}
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	if block {
		utils.MessageResponse(w, "User blocked", http.StatusOK)
	} else {
		utils.MessageResponse(w, "User unblocked", http.StatusOK)
	}
}

// DeletePrivateChat handles DELETE /api/v1/chat/private/{id}
func (h *Handler) DeletePrivateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chatID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeletePrivateChat(r.Context(), chatID, userID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Chat deleted", http.StatusOK)
}

// Group endpoints

// CreateGroup handles POST /api/v1/chat/group
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateGroupRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	group, err := h.service.CreateGroup(r.Context(), userID, &req)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.SuccessResponse(w, group, http.StatusCreated)
}

// GetGroup handles GET /api/v1/chat/group/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	group, err := h.service.GetGroup(r.Context(), groupID, userID)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.SuccessResponse(w, group, http.StatusOK)
}

// UpdateGroup handles PUT /api/v1/chat/group/{id}
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	var req UpdateGroupRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	group, err := h.service.UpdateGroup(r.Context(), groupID, userID, &req)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.SuccessResponse(w, group, http.StatusOK)
}

// DeleteGroup handles DELETE /api/v1/chat/group/{id}
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteGroup(r.Context(), groupID, userID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Group deleted", http.StatusOK)
}

// AddMembers handles POST /api/v1/chat/group/{id}/members
func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	var req AddMembersRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	added, err := h.service.AddMembers(r.Context(), groupID, userID, req.MemberIDs)
	if err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"added": added}, http.StatusOK)
}

// RemoveMember handles DELETE /api/v1/chat/group/{id}/members/{memberId}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	groupID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
		return
	}
	memberID, err := strconv.ParseInt(vars["memberId"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid member ID", http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveMember(r.Context(), groupID, userID, memberID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Member removed", http.StatusOK)
}

// ChangeMemberRole handles PUT /api/v1/chat/group/{id}/members/{memberId}/role
func (h *Handler) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	groupID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
		return
	}
	memberID, err := strconv.ParseInt(vars["memberId"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid member ID", http.StatusBadRequest)
		return
	}

	var req ChangeRoleRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.ChangeMemberRole(r.Context(), groupID, userID, memberID, GroupRole(req.Role)); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Role updated", http.StatusOK)
}

// LeaveGroup handles POST /api/v1/chat/group/{id}/leave
func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	if err := h.service.LeaveGroup(r.Context(), groupID, userID); err != nil {
		utils.ErrorResponse(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	utils.MessageResponse(w, "Left group", http.StatusOK)
}
