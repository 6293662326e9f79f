// Package service holds the business rules between the HTTP handlers and
// the backend: the content store the public page renders from, and the
// admin auth gate.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/model"
)

// ContentStore is the persistence half of backend.Backend.
type ContentStore interface {
	Load(ctx context.Context) (map[string][]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Snapshot is the content as the page and the API see it.
type Snapshot struct {
	model.Records
	// ConnectionError is set when the last load could not read the store,
	// or read a record it could not decode. The page still renders, from
	// defaults where needed.
	ConnectionError bool `json:"connectionError"`
}

// ContentService keeps the four records in memory and writes each change
// through to the store.
//
// Updates are optimistic: the in-memory value changes even when the save
// fails. The caller then gets the new value together with an
// apperror.ErrUnavailable so it can warn the admin without losing the edit.
type ContentService struct {
	store    ContentStore
	defaults model.Records
	validate *Validator
	logger   *slog.Logger
	now      func() time.Time

	// writeMu serialises mutations including their save, so the store
	// sees writes in the same order as memory. mu guards the state itself.
	writeMu sync.Mutex
	mu      sync.RWMutex
	records model.Records
	connErr bool

	// unsaved holds the keys whose last save failed. Their in-memory value
	// is newer than the store's, so Load keeps it. Guarded by writeMu.
	unsaved map[string]bool
}

// NewContentService creates a ContentService that starts out showing
// defaults. Call Load to read the store.
func NewContentService(store ContentStore, defaults model.Records, logger *slog.Logger) *ContentService {
	return &ContentService{
		store:    store,
		defaults: defaults.Clone(),
		validate: NewValidator(),
		logger:   logger,
		now:      time.Now,
		records:  defaults.Clone(),
		unsaved:  make(map[string]bool),
	}
}

// Load replaces the in-memory records with the stored ones. It never fails:
// an unreachable store leaves every record at its default and sets
// ConnectionError; a record that does not decode falls back on its own.
//
// Records edited since their last failed save keep the edited value, and
// ConnectionError stays set while any such record exists.
func (s *ContentService) Load(ctx context.Context) Snapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error("loading content failed, serving defaults",
			slog.String("error", err.Error()),
			slog.Int("unsaved", len(s.unsaved)),
		)
		s.set(s.keepUnsaved(s.defaults.Clone()), true)
		return s.Snapshot()
	}

	records, bad := s.decode(raw)
	s.set(s.keepUnsaved(records), bad || len(s.unsaved) > 0)

	s.logger.Info("content loaded",
		slog.Int("stored", len(raw)),
		slog.Int("links", len(records.Links)),
		slog.Bool("connectionError", bad),
	)
	return s.Snapshot()
}

// Snapshot returns a copy of the current state.
func (s *ContentService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Records: s.records.Clone(), ConnectionError: s.connErr}
}

func (s *ContentService) set(r model.Records, connErr bool) {
	s.mu.Lock()
	s.records = r
	s.connErr = connErr
	s.mu.Unlock()
}

// keepUnsaved copies the current value of every unsaved key into r.
// Callers hold writeMu.
func (s *ContentService) keepUnsaved(r model.Records) model.Records {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key := range s.unsaved {
		switch key {
		case model.KeyLinks:
			r.Links = slices.Clone(s.records.Links)
		case model.KeyVideos:
			r.Videos = s.records.Videos
		case model.KeyProfile:
			r.Profile = s.records.Profile
		case model.KeyFooter:
			r.Footer = s.records.Footer
		}
	}
	return r
}

// decode turns stored records into model.Records. bad reports whether any
// stored record was unreadable.
func (s *ContentService) decode(raw map[string][]byte) (r model.Records, bad bool) {
	r = s.defaults.Clone()

	if data, ok := raw[model.KeyLinks]; ok {
		var links []model.LinkEntry
		if err := json.Unmarshal(data, &links); err != nil {
			s.warnMalformed(model.KeyLinks, err)
			bad = true
		} else {
			r.Links = links
		}
	}

	if data, ok := raw[model.KeyVideos]; ok {
		videos, err := decodeVideos(data, s.defaults.Videos)
		if err != nil {
			s.warnMalformed(model.KeyVideos, err)
			bad = true
		} else {
			r.Videos = videos
		}
	}

	if data, ok := raw[model.KeyProfile]; ok {
		// Unmarshal over the defaults: fields the stored record lacks
		// keep their default value.
		profile := s.defaults.Profile
		if err := json.Unmarshal(data, &profile); err != nil {
			s.warnMalformed(model.KeyProfile, err)
			bad = true
		} else {
			r.Profile = profile
		}
	}

	if data, ok := raw[model.KeyFooter]; ok {
		var footer model.Footer
		if err := json.Unmarshal(data, &footer); err != nil {
			s.warnMalformed(model.KeyFooter, err)
			bad = true
		} else {
			r.Footer = footer
		}
	}

	return r, bad
}

func (s *ContentService) warnMalformed(key string, err error) {
	s.logger.Warn("stored record is malformed, using default",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// decodeVideos reads the videos record. Older records stored each slot as a
// bare URL string; those are lifted to {title: default title, url}. Slots
// missing from the record are filled from defaults.
func decodeVideos(data []byte, defaults model.Videos) (model.Videos, error) {
	var slots map[string]json.RawMessage
	if err := json.Unmarshal(data, &slots); err != nil {
		return model.Videos{}, err
	}

	out := defaults
	for _, key := range model.VideoSlots {
		rawSlot, ok := slots[key]
		if !ok || string(rawSlot) == "null" {
			continue
		}

		def, _ := defaults.Slot(key)

		var legacyURL string
		if err := json.Unmarshal(rawSlot, &legacyURL); err == nil {
			out, _ = out.WithSlot(key, model.VideoSlot{Title: def.Title, URL: legacyURL})
			continue
		}

		var slot model.VideoSlot
		if err := json.Unmarshal(rawSlot, &slot); err != nil {
			return model.Videos{}, fmt.Errorf("slot %s: %w", key, err)
		}
		out, _ = out.WithSlot(key, slot)
	}
	return out, nil
}

// persist writes value under key. Saves are detached from the request's
// cancellation: a client that disconnects mid-save does not abort it.
// A failure comes back as ErrUnavailable; memory has already changed.
// Callers hold writeMu.
func (s *ContentService) persist(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("service: encoding %s: %w", key, err)
	}

	if err := s.store.Save(context.WithoutCancel(ctx), key, data); err != nil {
		s.logger.Error("saving content failed, change kept in memory only",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		s.unsaved[key] = true
		return apperror.Unavailable("the change is shown but could not be saved", err)
	}

	delete(s.unsaved, key)
	s.logger.Info("content saved", slog.String("key", key))
	return nil
}

func trimLink(l model.LinkEntry) model.LinkEntry {
	l.Title = strings.TrimSpace(l.Title)
	l.URL = strings.TrimSpace(l.URL)
	return l
}

// nextLinkID returns the current time in milliseconds, bumped past any ID
// already in links.
func (s *ContentService) nextLinkID(links []model.LinkEntry) int64 {
	id := s.now().UnixMilli()
	for slices.ContainsFunc(links, func(l model.LinkEntry) bool { return l.ID == id }) {
		id++
	}
	return id
}

// AddLink appends a link. in.ID is ignored; a fresh one is assigned.
func (s *ContentService) AddLink(ctx context.Context, in model.LinkEntry) (model.LinkEntry, error) {
	in = trimLink(in)
	if err := s.validate.Struct(in); err != nil {
		return model.LinkEntry{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	in.ID = s.nextLinkID(s.records.Links)
	links := append(slices.Clone(s.records.Links), in)
	s.records.Links = links
	s.mu.Unlock()

	return in, s.persist(ctx, model.KeyLinks, links)
}

// UpdateLink replaces every field of the link with the given id.
func (s *ContentService) UpdateLink(ctx context.Context, id int64, in model.LinkEntry) (model.LinkEntry, error) {
	in = trimLink(in)
	if err := s.validate.Struct(in); err != nil {
		return model.LinkEntry{}, err
	}
	in.ID = id

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	i := slices.IndexFunc(s.records.Links, func(l model.LinkEntry) bool { return l.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return model.LinkEntry{}, apperror.NotFound("link", fmt.Sprint(id))
	}
	links := slices.Clone(s.records.Links)
	links[i] = in
	s.records.Links = links
	s.mu.Unlock()

	return in, s.persist(ctx, model.KeyLinks, links)
}

// DeleteLink removes the link with the given id. The order of the others
// is kept.
func (s *ContentService) DeleteLink(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	i := slices.IndexFunc(s.records.Links, func(l model.LinkEntry) bool { return l.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return apperror.NotFound("link", fmt.Sprint(id))
	}
	links := slices.Delete(slices.Clone(s.records.Links), i, i+1)
	s.records.Links = links
	s.mu.Unlock()

	return s.persist(ctx, model.KeyLinks, links)
}

// UpdateVideo replaces one of the two fixed slots.
func (s *ContentService) UpdateVideo(ctx context.Context, slot string, in model.VideoSlot) (model.Videos, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	if err := s.validate.Struct(in); err != nil {
		return model.Videos{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	videos, ok := s.records.Videos.WithSlot(slot, in)
	if !ok {
		s.mu.Unlock()
		return model.Videos{}, apperror.NotFound("video slot", slot)
	}
	s.records.Videos = videos
	s.mu.Unlock()

	return videos, s.persist(ctx, model.KeyVideos, videos)
}

// UpdateProfile replaces name, title and hashtag. The image is replaced only
// when in.Image is non-empty, so a form without an upload keeps the photo.
func (s *ContentService) UpdateProfile(ctx context.Context, in model.Profile) (model.Profile, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Title = strings.TrimSpace(in.Title)
	in.Hashtag = strings.TrimSpace(in.Hashtag)
	if err := s.validate.Struct(in); err != nil {
		return model.Profile{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if in.Image == "" {
		in.Image = s.records.Profile.Image
	}
	s.records.Profile = in
	s.mu.Unlock()

	return in, s.persist(ctx, model.KeyProfile, in)
}

// UpdateFooter replaces the footer text.
func (s *ContentService) UpdateFooter(ctx context.Context, in model.Footer) (model.Footer, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := s.validate.Struct(in); err != nil {
		return model.Footer{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.records.Footer = in
	s.mu.Unlock()

	return in, s.persist(ctx, model.KeyFooter, in)
}

// IsSaveWarning reports whether err only means the change was not
// persisted. The value returned alongside it is current.
func IsSaveWarning(err error) bool {
	return errors.Is(err, apperror.ErrUnavailable)
}
