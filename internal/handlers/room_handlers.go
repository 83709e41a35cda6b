package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chat-server/internal/config"
	"chat-server/internal/models"
	"chat-server/internal/services"
	"chat-server/pkg/logger"

	"github.com/gorilla/mux"
)

type RoomHandlers struct {
	roomService *services.RoomService
	history     config.HistoryConfig
}

func NewRoomHandlers(roomService *services.RoomService, history config.HistoryConfig) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
		history:     history,
	}
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	response, err := h.roomService.ListRooms(r.Context(), identity.ID)
	if err != nil {
		logger.Error("List rooms error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	room, err := h.roomService.CreateGroupRoom(r.Context(), identity.ID, &req)
	if err != nil {
		h.writeServiceError(w, "Create room", err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandlers) OpenDirectRoom(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	var req models.DirectRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	room, err := h.roomService.OpenDirectRoom(r.Context(), identity.ID, req.UserID)
	if err != nil {
		h.writeServiceError(w, "Open direct room", err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	roomID := mux.Vars(r)["roomId"]

	var req models.JoinRoomRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	room, err := h.roomService.JoinRoom(r.Context(), identity.ID, roomID, req.Password)
	if err != nil {
		h.writeServiceError(w, "Join room", err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	roomID := mux.Vars(r)["roomId"]

	if err := h.roomService.LeaveRoom(r.Context(), identity.ID, roomID); err != nil {
		h.writeServiceError(w, "Leave room", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *RoomHandlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	roomID := mux.Vars(r)["roomId"]

	if err := h.roomService.DeleteRoom(r.Context(), identity.ID, roomID); err != nil {
		h.writeServiceError(w, "Delete room", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *RoomHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	roomID := mux.Vars(r)["roomId"]

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = &t
	}

	limit := h.history.PageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	response, err := h.roomService.ListMessages(r.Context(), identity.ID, roomID, before, limit, h.history.MaxLimit)
	if err != nil {
		h.writeServiceError(w, "List messages", err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *RoomHandlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	roomID := mux.Vars(r)["roomId"]

	clearedBefore, err := h.roomService.ClearHistory(r.Context(), identity.ID, roomID)
	if err != nil {
		h.writeServiceError(w, "Clear history", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "clearedBefore": clearedBefore})
}

func (h *RoomHandlers) writeServiceError(w http.ResponseWriter, op string, err error) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, services.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, services.ErrNotAMember):
		writeError(w, http.StatusForbidden, "not a member of this room")
	case errors.Is(err, services.ErrInvalidPassword):
		writeError(w, http.StatusForbidden, "invalid room password")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		logger.Error("%s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
