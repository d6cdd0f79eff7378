// Package models defines client-side data models used by the captionkeeper
// client: captions as the feed holds them, the session identity and the
// page envelopes returned by the caption API.
package models

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dmitrijs2005/captionkeeper/internal/common"
)

// CaptionType classifies how a caption is rendered.
type CaptionType string

const (
	CaptionTypeBackground CaptionType = "background"
	CaptionTypeImageIcon  CaptionType = "image_icon"
	CaptionTypeImageGIF   CaptionType = "image_gif"
)

// Valid reports whether t is one of the known caption types.
func (t CaptionType) Valid() bool {
	switch t {
	case CaptionTypeBackground, CaptionTypeImageIcon, CaptionTypeImageGIF:
		return true
	}
	return false
}

// Caption is a single library item as held by the feed cache.
//
// Color fields are presentation data and opaque to the client core.
// IsFavorite is relative to the current viewer; for anonymous viewers it is
// a local overlay, not server state.
type Caption struct {
	ID            string      `json:"id"`
	Text          string      `json:"text"`
	Tags          []string    `json:"tags,omitempty"`
	Color         string      `json:"color"`
	ColorTop      string      `json:"colortop"`
	ColorBottom   string      `json:"colorbottom"`
	IconURL       string      `json:"icon_url,omitempty"`
	Type          CaptionType `json:"type"`
	Author        string      `json:"author"`
	CreatedAt     Timestamp   `json:"created_at"`
	FavoriteCount int         `json:"favorite_count"`
	IsFavorite    bool        `json:"is_favorite"`
	IsPopular     bool        `json:"is_popular"`
	IsPrivate     bool        `json:"is_private,omitempty"`
}

// Clone returns a deep copy so callers can never alias the feed's slices.
func (c Caption) Clone() Caption {
	c.Tags = slices.Clone(c.Tags)
	return c
}

// HasAllTags reports whether every tag in want is present on the caption.
// Comparison is case-insensitive; an empty want always matches.
func (c Caption) HasAllTags(want []string) bool {
	for _, w := range want {
		found := false
		for _, tag := range c.Tags {
			if strings.EqualFold(tag, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IconFile is an icon image attached to a draft; it is sent as a multipart
// file part and consumes upload quota on the server.
type IconFile struct {
	Name    string
	Content io.Reader
}

// CaptionDraft is the user-supplied content of a caption before the server
// assigns it an id.
type CaptionDraft struct {
	Text        string
	Tags        []string
	Color       string
	ColorTop    string
	ColorBottom string
	Type        CaptionType
	IsPrivate   bool

	// At most one of Icon and IconLink is expected; Icon wins when both are set.
	Icon     *IconFile
	IconLink string
}

// HasIcon reports whether an icon file is attached.
func (d CaptionDraft) HasIcon() bool {
	return d.Icon != nil && d.Icon.Content != nil
}

// Validate checks the fields the create endpoint requires.
func (d CaptionDraft) Validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("text: %w", common.ErrMissingField)
	}
	if d.Type == "" {
		return fmt.Errorf("type: %w", common.ErrMissingField)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("unknown caption type %q", d.Type)
	}
	if d.Type != CaptionTypeBackground && !d.HasIcon() && d.IconLink == "" {
		return fmt.Errorf("icon for %s caption: %w", d.Type, common.ErrMissingField)
	}
	return nil
}

// CursorPage is one slice of the cursor-paginated listing or trending feed.
type CursorPage struct {
	Captions  []Caption `json:"captions"`
	HasMore   bool      `json:"has_more"`
	NextToken string    `json:"next_token"`
	Limit     int       `json:"limit"`
}

// SearchPage is one page of the offset-paginated search endpoint.
type SearchPage struct {
	Captions []Caption `json:"captions"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
