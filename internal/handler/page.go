// Package handler holds the HTTP handlers: the public page and the JSON
// API behind the admin controls. Handlers parse requests, call a service
// and write the response; rules live in the services.
package handler

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/sakif/clinic-links/internal/auth"
	"github.com/sakif/clinic-links/internal/model"
	"github.com/sakif/clinic-links/internal/service"
)

// PageHandler renders the public link page. Templates are parsed once at
// startup.
type PageHandler struct {
	templates *template.Template
	content   *service.ContentService
	auth      *service.AuthService
	logger    *slog.Logger
}

// NewPageHandler parses base.html and page.html from templateDir.
func NewPageHandler(templateDir string, content *service.ContentService, authService *service.AuthService, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := template.New("base.html").Funcs(template.FuncMap{
		"embedURL": model.EmbedURL,
		"safeURL":  safeImageURL,
	}).ParseFiles(
		filepath.Join(templateDir, "base.html"),
		filepath.Join(templateDir, "page.html"),
	)
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		templates: tmpl,
		content:   content,
		auth:      authService,
		logger:    logger,
	}, nil
}

// safeImageURL lets uploaded data:image URLs through html/template, which
// would otherwise rewrite them to #ZgotmplZ. Anything else goes through the
// normal URL escaping.
func safeImageURL(s string) any {
	if strings.HasPrefix(s, "data:image/") {
		return template.URL(s)
	}
	return s
}

// PageData is what page.html renders.
type PageData struct {
	Title   string
	Content service.Snapshot
	State   model.AuthState
	Subject string
	IsAdmin bool

	Videos    []VideoView
	Icons     []model.Icon
	LinkTypes []model.LinkType
}

// VideoView pairs a slot with its key for the edit forms.
type VideoView struct {
	Key string
	model.VideoSlot
}

func videoViews(v model.Videos) []VideoView {
	views := make([]VideoView, 0, len(model.VideoSlots))
	for _, key := range model.VideoSlots {
		slot, _ := v.Slot(key)
		views = append(views, VideoView{Key: key, VideoSlot: slot})
	}
	return views
}

// HandlePage serves the public page, with the admin controls when the
// visitor is logged in.
//
// HTTP: GET /
func (h *PageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	snap := h.content.Snapshot()
	if snap.ConnectionError {
		// The last load failed; try again so the page recovers once the
		// store is back.
		snap = h.content.Load(context.WithoutCancel(r.Context()))
	}

	sess, loggedIn := auth.SessionFromContext(r.Context())

	data := PageData{
		Title:     snap.Profile.Name + " | " + snap.Profile.Title,
		Content:   snap,
		State:     h.auth.State(r.Context(), loggedIn),
		Subject:   sess.Subject,
		IsAdmin:   loggedIn,
		Videos:    videoViews(snap.Videos),
		Icons:     model.Icons,
		LinkTypes: model.LinkTypes,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
