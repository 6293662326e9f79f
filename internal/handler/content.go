package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/model"
	"github.com/sakif/clinic-links/internal/service"
)

// maxImageBytes caps profile photo uploads. The photo is inlined into the
// profile record as a data URL, so it has to stay small.
const maxImageBytes = 2 << 20

// ContentHandler serves the content API.
type ContentHandler struct {
	content *service.ContentService
	logger  *slog.Logger
}

// NewContentHandler creates a ContentHandler.
func NewContentHandler(content *service.ContentService, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{content: content, logger: logger}
}

// HandleGet returns all four records and the connection flag.
//
// HTTP: GET /api/content
func (h *ContentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.Snapshot())
}

// respond finishes a mutation: save warnings still carry the new value,
// any other error replaces it.
func (h *ContentHandler) respond(w http.ResponseWriter, status int, data any, err error) {
	if err != nil && !service.IsSaveWarning(err) {
		writeError(w, err)
		return
	}
	writeMutation(w, status, data, err)
}

func linkID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("id", "link id must be a number")
	}
	return id, nil
}

// HandleAddLink appends a link.
//
// HTTP: POST /api/links
// REQUEST BODY: {"title","url","icon","type"}
func (h *ContentHandler) HandleAddLink(w http.ResponseWriter, r *http.Request) {
	var in model.LinkEntry
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	link, err := h.content.AddLink(r.Context(), in)
	h.respond(w, http.StatusCreated, link, err)
}

// HandleUpdateLink replaces a link.
//
// HTTP: PUT /api/links/{id}
func (h *ContentHandler) HandleUpdateLink(w http.ResponseWriter, r *http.Request) {
	id, err := linkID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var in model.LinkEntry
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	link, err := h.content.UpdateLink(r.Context(), id, in)
	h.respond(w, http.StatusOK, link, err)
}

// HandleDeleteLink removes a link.
//
// HTTP: DELETE /api/links/{id}
func (h *ContentHandler) HandleDeleteLink(w http.ResponseWriter, r *http.Request) {
	id, err := linkID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	err = h.content.DeleteLink(r.Context(), id)
	h.respond(w, http.StatusNoContent, nil, err)
}

// HandleUpdateVideo replaces one video slot.
//
// HTTP: PUT /api/videos/{slot}
// REQUEST BODY: {"title","url"}
func (h *ContentHandler) HandleUpdateVideo(w http.ResponseWriter, r *http.Request) {
	var in model.VideoSlot
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	videos, err := h.content.UpdateVideo(r.Context(), chi.URLParam(r, "slot"), in)
	h.respond(w, http.StatusOK, videos, err)
}

// HandleUpdateProfile replaces the profile.
//
// HTTP: PUT /api/profile
// Either a JSON body {"name","title","hashtag"[,"image"]} or a multipart
// form with those fields and an optional "image" file.
func (h *ContentHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in model.Profile

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var err error
		in, err = h.profileFromForm(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
	} else if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.content.UpdateProfile(r.Context(), in)
	h.respond(w, http.StatusOK, profile, err)
}

func (h *ContentHandler) profileFromForm(w http.ResponseWriter, r *http.Request) (model.Profile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+maxJSONBody)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		return model.Profile{}, apperror.ValidationFailed("image", "upload too large or malformed")
	}

	in := model.Profile{
		Name:    r.FormValue("name"),
		Title:   r.FormValue("title"),
		Hashtag: r.FormValue("hashtag"),
	}

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return model.Profile{}, apperror.ValidationFailed("image", "could not read the uploaded image")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return model.Profile{}, fmt.Errorf("handler: reading upload: %w", err)
	}
	if len(data) > maxImageBytes {
		return model.Profile{}, apperror.ValidationFailed("image", "image must be 2 MB or smaller")
	}

	in.Image, err = imageDataURL(data)
	if err != nil {
		return model.Profile{}, err
	}

	h.logger.Info("profile image uploaded", slog.Int("bytes", len(data)))
	return in, nil
}

// imageDataURL encodes an uploaded image as data:<mime>;base64,...
// The type is sniffed from the bytes; the client's claim is ignored.
func imageDataURL(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperror.ValidationFailed("image", "the uploaded image is empty")
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", apperror.ValidationFailed("image", "the upload is not an image")
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// HandleUpdateFooter replaces the footer.
//
// HTTP: PUT /api/footer
// REQUEST BODY: {"text"}
func (h *ContentHandler) HandleUpdateFooter(w http.ResponseWriter, r *http.Request) {
	var in model.Footer
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	footer, err := h.content.UpdateFooter(r.Context(), in)
	h.respond(w, http.StatusOK, footer, err)
}
