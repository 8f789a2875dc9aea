package app

import (
	"net/http"
	"strconv"

	"github.com/RitoIssei/bot-mng-ns/pkg/budget_request"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies) {

	// Propagate X-User-Id, X-Username and X-User-Name headers into the context as the actor
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			userIdHeader := req.Header.Get("X-User-Id")
			if userIdHeader == "" {
				next.ServeHTTP(w, req)
				return
			}
			userId, err := strconv.ParseInt(userIdHeader, 10, 64)
			if err != nil {
				log.Debugf("invalid user id header: %s", userIdHeader)
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}
			ctx := budget_request.WithActor(req.Context(), budget_request.Actor{
				ID:          userId,
				Username:    req.Header.Get("X-Username"),
				DisplayName: req.Header.Get("X-User-Name"),
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	// Requests relayed from a chat must come from an allowed room
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			chatIdHeader := req.Header.Get("X-Chat-Id")
			if chatIdHeader == "" {
				next.ServeHTTP(w, req)
				return
			}
			chatId, err := strconv.ParseInt(chatIdHeader, 10, 64)
			if err != nil {
				http.Error(w, "invalid chat id", http.StatusBadRequest)
				return
			}
			if !deps.Authorizer.IsAllowedRoom(req.Context(), chatId) {
				log.Debugf("chat %d is not an allowed room", chatId)
				http.Error(w, "room not allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
}

// requireAdmin rejects requests whose actor is not a configured admin.
func requireAdmin(deps *Dependencies) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			actor, err := budget_request.CurrentActor(req.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if !deps.Authorizer.IsAdmin(actor.ID) {
				http.Error(w, "admin only", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
