package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/ALCHACAS2/Dots-Boxes/internal/hub"
	"github.com/ALCHACAS2/Dots-Boxes/internal/room"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const codeAttempts = 8

func GenerateCode() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createRoomRequest struct {
	GridSize int            `json:"gridSize"`
	GameType types.GameType `json:"gameType"`
}

// CreateRoom reserves a fresh code. The body is optional.
func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		var code string
		for range codeAttempts {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			if h.Get(r.Context(), c) == nil {
				code = c
				break
			}
			log.Debug("collision on code, regenerating")
		}
		if code == "" {
			http.Error(w, "no free room code", http.StatusServiceUnavailable)
			return
		}

		rm := h.Ensure(r.Context(), code, room.Settings{GridSize: req.GridSize, GameType: req.GameType})
		if rm == nil {
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}
		v, ok := rm.State()
		if !ok {
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

// ListRooms returns every open room with its roster.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := []room.View{}
		for _, code := range h.List(r.Context()) {
			rm := h.Get(r.Context(), code)
			if rm == nil {
				continue
			}
			if v, ok := rm.State(); ok {
				rooms = append(rooms, v)
			}
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := types.NormalizeRoomCode(chi.URLParam(r, "code"))
		rm := h.Get(r.Context(), code)
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		v, ok := rm.State()
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
