package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pbeck/parley/internal/chat"
	"github.com/pbeck/parley/internal/middleware"
	"github.com/pbeck/parley/internal/models"
)

// ChatHandler translates HTTP requests into chat service operations. All
// routes here run behind the auth middleware.
type ChatHandler struct {
	Service *chat.Service
}

func (h *ChatHandler) CreateDM(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	view, err := h.Service.CreateDirectChat(middleware.UserID(r), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Created new DM", envelope{"chat": view})
}

func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupName string        `json:"group_name"`
		Invitees  []chat.Invitee `json:"invitees"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupName == "" {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	view, failed, err := h.Service.CreateGroupChat(middleware.UserID(r), req.GroupName, req.Invitees)
	if err != nil {
		writeError(w, err)
		return
	}
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, "Created new group", envelope{
		"chat":            view,
		"failed_invitees": failed,
	})
}

func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.Service.ListChats(middleware.UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("Found %d chat(s)", len(chats)), envelope{"chats": chats})
}

func (h *ChatHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	members, err := h.Service.ListMembers(middleware.UserID(r), chatID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMembers(w, members)
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	messages, err := h.Service.ListMessages(middleware.UserID(r), chatID)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []models.MessageView{}
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("Found %d message(s)", len(messages)), envelope{"messages": messages})
}

func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var req struct {
		Content string `json:"content"`
		FileRef string `json:"file_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	msg, err := h.Service.PostMessage(middleware.UserID(r), chatID, req.Content, req.FileRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Message sent", envelope{"message_view": msg})
}

func (h *ChatHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var req struct {
		Username string `json:"username"`
		Admin    bool   `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	members, err := h.Service.AddMember(middleware.UserID(r), chatID, req.Username, req.Admin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMembers(w, members)
}

func (h *ChatHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	members, err := h.Service.RemoveMember(middleware.UserID(r), vars["id"], vars["userId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeMembers(w, members)
}

func (h *ChatHandler) Leave(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	if err := h.Service.Leave(middleware.UserID(r), chatID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Left the chat", nil)
}

func (h *ChatHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	members, err := h.Service.ToggleAdmin(middleware.UserID(r), chatID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMembers(w, members)
}

func (h *ChatHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var req struct {
		Disappearing *bool `json:"disappearing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Disappearing == nil {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	if err := h.Service.SetDisappearing(middleware.UserID(r), chatID, *req.Disappearing); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Updated chat settings", nil)
}

func (h *ChatHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	var req struct {
		Name       string `json:"name"`
		PictureRef string `json:"picture_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	if err := h.Service.UpdateGroup(middleware.UserID(r), chatID, req.Name, req.PictureRef); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Updated group", nil)
}

func writeMembers(w http.ResponseWriter, members []models.MemberView) {
	if members == nil {
		members = []models.MemberView{}
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("Found %d member(s)", len(members)), envelope{"members": members})
}
