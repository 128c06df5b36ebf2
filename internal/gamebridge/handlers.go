package gamebridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"linkbot/internal/link"
	logx "linkbot/pkg/logx"
)

const maxBody = 16 << 10

type codeRequest struct {
	Code   string      `json:"code"`
	GameID link.GameID `json:"game_id"`
	TTL    string      `json:"ttl,omitempty"`
}

type codeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type presenceRequest struct {
	GameID      link.GameID `json:"game_id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name,omitempty"`
	Online      bool        `json:"online"`
}

type messagesResponse struct {
	Messages []string `json:"messages"`
}

type profileJSON struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type linkResponse struct {
	GameID  link.GameID   `json:"game_id"`
	Kind    string        `json:"kind"`
	ChatID  string        `json:"chat_id"`
	Linked  []link.GameID `json:"linked"`
	Profile *profileJSON  `json:"profile,omitempty"`
}

func (s *Service) handlePostCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.GameID.IsZero() {
		writeError(w, http.StatusBadRequest, errors.New("game_id is required"))
		return
	}
	ttl := time.Duration(0)
	if s.deps.CodeTTL != nil {
		ttl = s.deps.CodeTTL()
	}
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ttl %q", req.TTL))
			return
		}
		ttl = d
	}
	code := s.deps.Codes.Put(req.Code, req.GameID, ttl)
	if code == "" {
		writeError(w, http.StatusBadRequest, errors.New("code must contain digits"))
		return
	}
	s.log.Debug("linking code registered", logx.String("game_id", req.GameID.String()), logx.Duration("ttl", ttl))
	resp := codeResponse{Code: code}
	if ttl > 0 {
		resp.ExpiresAt = time.Now().Add(ttl).UTC()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Service) handlePresence(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.GameID.IsZero() {
		writeError(w, http.StatusBadRequest, errors.New("game_id is required"))
		return
	}
	s.deps.Presence.Update(req.GameID, link.Profile{Name: req.Name, DisplayName: req.DisplayName}, req.Online)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, err := link.ParseGameID(r.URL.Query().Get("game_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msgs := s.deps.Presence.Drain(id)
	if msgs == nil {
		msgs = []string{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs})
}

func (s *Service) handleGetLink(w http.ResponseWriter, r *http.Request) {
	id, err := link.ParseGameID(r.PathValue("game_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	chatID, ok := s.deps.Links.ChatIDFor(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("not linked"))
		return
	}
	resp := linkResponse{GameID: id, Kind: id.Kind().String(), ChatID: chatID}
	if rec, ok := s.deps.Links.GameIDsFor(chatID); ok {
		resp.Linked = rec.IDs()
	}
	if p, ok := s.deps.Presence.Profile(id); ok {
		resp.Profile = &profileJSON{Name: p.Name, DisplayName: p.DisplayName}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	id, err := link.ParseGameID(r.PathValue("game_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, ok := s.deps.Links.ChatIDFor(id); !ok {
		writeError(w, http.StatusNotFound, errors.New("not linked"))
		return
	}
	s.deps.Links.UnlinkGame(id)
	s.log.Info("link removed by game server", logx.String("game_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
