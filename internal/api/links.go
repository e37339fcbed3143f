package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-home/hearth-core/internal/thing"
)

// createLinkRequest is the request body for POST /links.
type createLinkRequest struct {
	ItemName   string         `json:"item_name"`
	ChannelUID string         `json:"channel_uid"`
	Config     map[string]any `json:"config,omitempty"`
}

// handleListLinks returns all item/channel links.
func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	if s.links == nil {
		writeNotFound(w, "link storage not configured")
		return
	}

	links, err := s.links.ListLinks(r.Context())
	if err != nil {
		s.logger.Error("failed to list links", "error", err)
		writeInternalError(w, "failed to list links")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"links": links,
		"count": len(links),
	})
}

// handleGetLink returns a single link by item name and channel UID.
func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	if s.links == nil {
		writeNotFound(w, "link storage not configured")
		return
	}

	item := chi.URLParam(r, "item")
	channel := chi.URLParam(r, "channel")

	link, err := s.links.GetLink(r.Context(), item, channel)
	if err != nil {
		if errors.Is(err, thing.ErrLinkNotFound) {
			writeNotFound(w, "no link for "+item+" -> "+channel)
			return
		}
		s.logger.Error("failed to get link", "item", item, "channel", channel, "error", err)
		writeInternalError(w, "failed to get link")
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// handleCreateLink creates or replaces an item/channel link.
func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	if s.links == nil {
		writeNotFound(w, "link storage not configured")
		return
	}

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	link := &thing.Link{
		ItemName:   req.ItemName,
		ChannelUID: req.ChannelUID,
		Config:     req.Config,
		CreatedAt:  time.Now().UTC(),
	}
	if err := link.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.links.PutLink(r.Context(), link); err != nil {
		s.logger.Error("failed to store link",
			"item", req.ItemName, "channel", req.ChannelUID, "error", err)
		writeInternalError(w, "failed to store link")
		return
	}

	writeJSON(w, http.StatusCreated, link)
}

// handlePutLink creates or replaces the link addressed by the URL.
// The body optionally carries a link config; item and channel come from
// the path.
func (s *Server) handlePutLink(w http.ResponseWriter, r *http.Request) {
	if s.links == nil {
		writeNotFound(w, "link storage not configured")
		return
	}

	var req struct {
		Config map[string]any `json:"config,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	link := &thing.Link{
		ItemName:   chi.URLParam(r, "item"),
		ChannelUID: chi.URLParam(r, "channel"),
		Config:     req.Config,
		CreatedAt:  time.Now().UTC(),
	}
	if err := link.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.links.PutLink(r.Context(), link); err != nil {
		s.logger.Error("failed to store link",
			"item", link.ItemName, "channel", link.ChannelUID, "error", err)
		writeInternalError(w, "failed to store link")
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// handleDeleteLink removes an item/channel link.
func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	if s.links == nil {
		writeNotFound(w, "link storage not configured")
		return
	}

	item := chi.URLParam(r, "item")
	channel := chi.URLParam(r, "channel")

	if err := s.links.DeleteLink(r.Context(), item, channel); err != nil {
		if errors.Is(err, thing.ErrLinkNotFound) {
			writeNotFound(w, "no link for "+item+" -> "+channel)
			return
		}
		s.logger.Error("failed to delete link", "item", item, "channel", channel, "error", err)
		writeInternalError(w, "failed to delete link")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}
