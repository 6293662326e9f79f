// Package model defines the content records shown on the public page and
// the admin credential that guards editing them.
//
// Every record is persisted as JSON under a fixed key (see the Key
// constants). The `json:"..."` tags are the storage format, so renaming a
// field is a data migration, not a refactor.
package model

// Keys of the four content records in every backing store.
const (
	KeyLinks   = "links"
	KeyVideos  = "videos"
	KeyProfile = "profile"
	KeyFooter  = "footer"
)

// ContentKeys lists the record keys in load order.
var ContentKeys = []string{KeyLinks, KeyVideos, KeyProfile, KeyFooter}

// Icon names the glyph drawn next to a link.
type Icon string

const (
	IconGlobe         Icon = "Globe"
	IconInstagram     Icon = "Instagram"
	IconWhatsApp      Icon = "WhatsApp"
	IconTikTok        Icon = "TikTok"
	IconMessageCircle Icon = "MessageCircle"
	IconPlayCircle    Icon = "PlayCircle"
	IconHistory       Icon = "History"
)

// Icons is the full set, in the order the admin form offers them.
var Icons = []Icon{
	IconGlobe, IconInstagram, IconWhatsApp, IconTikTok,
	IconMessageCircle, IconPlayCircle, IconHistory,
}

// LinkType controls how a link button is styled.
type LinkType string

const (
	LinkPrimary LinkType = "primary"
	LinkSocial  LinkType = "social"
	LinkAction  LinkType = "action"
)

var LinkTypes = []LinkType{LinkPrimary, LinkSocial, LinkAction}

// LinkEntry is one button on the page.
//
// ID is the creation time in Unix milliseconds. Uniqueness is best-effort:
// nothing in storage enforces it, the service only avoids handing out an ID
// that is already in the current sequence.
type LinkEntry struct {
	ID    int64    `json:"id"    yaml:"id"`
	Title string   `json:"title" yaml:"title" validate:"required"`
	URL   string   `json:"url"   yaml:"url"   validate:"required"`
	Icon  Icon     `json:"icon"  yaml:"icon"  validate:"required,oneof=Globe Instagram WhatsApp TikTok MessageCircle PlayCircle History"`
	Type  LinkType `json:"type"  yaml:"type"  validate:"required,oneof=primary social action"`
}

// Profile is the header block: photo, name, specialty and hashtag.
// Image is either a URL or an inlined data URL from an upload.
type Profile struct {
	Name    string `json:"name"    yaml:"name"    validate:"required"`
	Title   string `json:"title"   yaml:"title"   validate:"required"`
	Hashtag string `json:"hashtag" yaml:"hashtag" validate:"required"`
	Image   string `json:"image"   yaml:"image"`
}

// Footer is the single line of text at the bottom of the page.
type Footer struct {
	Text string `json:"text" yaml:"text" validate:"required"`
}

// Records bundles the four content records.
type Records struct {
	Links   []LinkEntry `json:"links"   yaml:"links"`
	Videos  Videos      `json:"videos"  yaml:"videos"`
	Profile Profile     `json:"profile" yaml:"profile"`
	Footer  Footer      `json:"footer"  yaml:"footer"`
}

// Clone returns a copy whose Links slice does not alias r.Links.
func (r Records) Clone() Records {
	out := r
	out.Links = make([]LinkEntry, len(r.Links))
	copy(out.Links, r.Links)
	return out
}
