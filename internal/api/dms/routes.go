package dms

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterDMRoutes registers the durable DM API, the push publish endpoint
// and the websocket stream on routers that already carry authentication.
func RegisterDMRoutes(api, sockets *mux.Router, handler *DMHandler) {
	api.HandleFunc("/dms/conversations", handler.ListConversations).Methods(http.MethodGet)
	api.HandleFunc("/dms/messages", handler.GetMessages).Methods(http.MethodGet)
	api.HandleFunc("/dms/messages", handler.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/dms/read", handler.MarkRead).Methods(http.MethodPost)
	api.HandleFunc("/push/messages", handler.PublishMessage).Methods(http.MethodPost)

	sockets.HandleFunc("/dms", handler.ServeWS).Methods(http.MethodGet)
}
