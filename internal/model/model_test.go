package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"watch page", "https://www.youtube.com/watch?v=abc123", "https://www.youtube.com/embed/abc123"},
		{"watch page without www", "https://youtube.com/watch?v=abc123", "https://www.youtube.com/embed/abc123"},
		{"watch page with extra params", "https://www.youtube.com/watch?v=abc123&t=42s", "https://www.youtube.com/embed/abc123"},
		{"mobile watch page", "https://m.youtube.com/watch?v=abc123", "https://www.youtube.com/embed/abc123"},
		{"short link", "https://youtu.be/abc123", "https://www.youtube.com/embed/abc123"},
		{"short link with query", "https://youtu.be/abc123?si=xyz", "https://www.youtube.com/embed/abc123"},
		{"shorts", "https://www.youtube.com/shorts/abc123", "https://www.youtube.com/embed/abc123"},
		{"already embeddable", "https://www.youtube.com/embed/abc123", "https://www.youtube.com/embed/abc123"},
		{"other host untouched", "https://player.vimeo.com/video/1", "https://player.vimeo.com/video/1"},
		{"placeholder untouched", "#", "#"},
		{"empty", "", ""},
		{"watch page without id untouched", "https://www.youtube.com/watch", "https://www.youtube.com/watch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmbedURL(tt.in))
		})
	}
}

func TestDefaults(t *testing.T) {
	d := Defaults()

	require.Len(t, d.Links, 4)
	assert.Equal(t, "Sitio Web Oficial", d.Links[0].Title)
	assert.Equal(t, IconGlobe, d.Links[0].Icon)
	assert.Equal(t, LinkPrimary, d.Links[0].Type)
	assert.Equal(t, "#", d.Links[3].URL)
	assert.Equal(t, LinkAction, d.Links[3].Type)

	assert.Equal(t, "Presentación", d.Videos.Presentation.Title)
	assert.Equal(t, "Nuestra Historia", d.Videos.History.Title)
	assert.Equal(t, "Dr. Giovanni Fuentes", d.Profile.Name)
	assert.Equal(t, "#LaBelleza440", d.Profile.Hashtag)
	assert.Equal(t, "440 Clinic. Todos los derechos reservados.", d.Footer.Text)
}

func TestDefaults_ReturnsFreshCopy(t *testing.T) {
	a := Defaults()
	a.Links[0].Title = "changed"

	b := Defaults()
	assert.Equal(t, "Sitio Web Oficial", b.Links[0].Title)
}

func TestDefaultsWithOverride(t *testing.T) {
	override := []byte(`
profile:
  name: Dra. Ana Ruiz
footer:
  text: Clínica Ruiz
`)
	r, err := DefaultsWithOverride(override)
	require.NoError(t, err)

	assert.Equal(t, "Dra. Ana Ruiz", r.Profile.Name)
	assert.Equal(t, "#LaBelleza440", r.Profile.Hashtag, "fields missing from the override keep their default")
	assert.Equal(t, "Clínica Ruiz", r.Footer.Text)
	assert.Len(t, r.Links, 4)
}

func TestDefaultsWithOverride_Invalid(t *testing.T) {
	_, err := DefaultsWithOverride([]byte("links: [unterminated"))
	assert.Error(t, err)
}

func TestRecordsJSONShape(t *testing.T) {
	d := Defaults()

	data, err := json.Marshal(d.Videos)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &keys))
	assert.Len(t, keys, 2, "videos always serialise exactly the two fixed slots")
	assert.Contains(t, keys, SlotPresentation)
	assert.Contains(t, keys, SlotHistory)
}

func TestVideosWithSlot(t *testing.T) {
	v := Defaults().Videos

	out, ok := v.WithSlot(SlotHistory, VideoSlot{Title: "Historia", URL: "https://youtu.be/x"})
	require.True(t, ok)
	assert.Equal(t, "Historia", out.History.Title)
	assert.Equal(t, v.Presentation, out.Presentation)

	_, ok = v.WithSlot("bonus", VideoSlot{})
	assert.False(t, ok)

	_, ok = v.Slot("bonus")
	assert.False(t, ok)
}

func TestRecordsClone(t *testing.T) {
	r := Defaults()
	c := r.Clone()
	c.Links[0].Title = "mutated"

	assert.Equal(t, "Sitio Web Oficial", r.Links[0].Title)
}
