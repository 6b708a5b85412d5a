package httpapi

import (
	"net/http"

	"github.com/ALCHACAS2/Dots-Boxes/internal/hub"
	"github.com/ALCHACAS2/Dots-Boxes/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(h *hub.Hub, wsOpts ws.Options) http.Handler {
	log := wsOpts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, wsOpts))
	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", ListRooms(h))
		r.Post("/", CreateRoom(h, log.Named("http")))
		r.Get("/{code}", GetRoom(h))
	})
	return r
}
