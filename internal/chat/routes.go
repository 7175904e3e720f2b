// internal/chat/routes.go

package chat

import (
	"github.com/gorilla/mux"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/auth"
)

// RegisterRoutes mounts the chat endpoints. The websocket handshake does its
// own token validation, so /ws sits outside the auth middleware.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	router.HandleFunc("/ws", handler.ServeWS).Methods("GET")

	api := router.PathPrefix("/api/v1/chat").Subrouter()
	api.Use(authMiddleware.Authenticate)

	// Private chats
	api.HandleFunc("/private", handler.OpenPrivateChat).Methods("POST")
	api.HandleFunc("/private/{id:[0-9]+}/block", handler.BlockPeer).Methods("PUT")
	api.HandleFunc("/private/{id:[0-9]+}/unblock", handler.UnblockPeer).Methods("PUT")
	api.HandleFunc("/private/{id:[0-9]+}", handler.DeletePrivateChat).Methods("DELETE")

	// Messages. POST /messages is the fallback path for clients without a
	// live connection; /messages/http-fallback is an alias kept for clients
	// that address the fallback explicitly.
	api.HandleFunc("/messages", handler.SendMessage).Methods("POST")
	api.HandleFunc("/messages/http-fallback", handler.SendMessage).Methods("POST")
	api.HandleFunc("/messages", handler.ListMessages).Methods("GET")
	api.HandleFunc("/messages/read", handler.MarkChatRead).Methods("PUT")
	api.HandleFunc("/messages/{id:[0-9]+}/read", handler.MarkMessageRead).Methods("PUT")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.DeleteMessage).Methods("DELETE")

	// Groups
	api.HandleFunc("/group", handler.CreateGroup).Methods("POST")
	api.HandleFunc("/group/{id:[0-9]+}", handler.GetGroup).Methods("GET")
	api.HandleFunc("/group/{id:[0-9]+}", handler.UpdateGroup).Methods("PUT")
	api.HandleFunc("/group/{id:[0-9]+}", handler.DeleteGroup).Methods("DELETE")
	api.HandleFunc("/group/{id:[0-9]+}/members", handler.AddMembers).Methods("POST")
	api.HandleFunc("/group/{id:[0-9]+}/members/{memberId:[0-9]+}", handler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/group/{id:[0-9]+}/members/{memberId:[0-9]+}/role", handler.ChangeMemberRole).Methods("PUT")
	api.HandleFunc("/group/{id:[0-9]+}/leave", handler.LeaveGroup).Methods("POST")
}
