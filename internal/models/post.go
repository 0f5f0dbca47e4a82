// Package models defines core data structures for posts, tags, ratings and result pages.
package models

import (
	"regexp"
	"strings"
	"time"
)

// Post is a single media post with its tags.
type Post struct {
	ID         string    `json:"id" db:"id"`
	MediaURL   string    `json:"media_url" db:"media_url"`
	PreviewURL string    `json:"preview_url,omitempty" db:"preview_url"`
	SourceURL  string    `json:"source_url,omitempty" db:"source_url"`
	Rating     Rating    `json:"rating" db:"rating"`
	Tags       []Tag     `json:"tags"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PostInput is the input for creating a post.
type PostInput struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	MediaURL   string `json:"media_url" yaml:"media_url"`
	PreviewURL string `json:"preview_url,omitempty" yaml:"preview_url,omitempty"`
	SourceURL  string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Rating     Rating `json:"rating,omitempty" yaml:"rating,omitempty"`
	Tags       []Tag  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// PostUpdate holds the fields to change on a post. Nil fields are left untouched.
type PostUpdate struct {
	MediaURL   *string `json:"media_url,omitempty"`
	PreviewURL *string `json:"preview_url,omitempty"`
	SourceURL  *string `json:"source_url,omitempty"`
	Rating     *Rating `json:"rating,omitempty"`
	Tags       []Tag   `json:"tags,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u *PostUpdate) Empty() bool {
	return u.MediaURL == nil && u.PreviewURL == nil && u.SourceURL == nil && u.Rating == nil && u.Tags == nil
}

var videoExt = regexp.MustCompile(`(?i)\.(mp4|webm|mov|avi|mkv)(\?|$)`)

// IsVideoURL reports whether url points at a video file.
func IsVideoURL(url string) bool {
	if url == "" {
		return false
	}
	return videoExt.MatchString(url)
}

// IsVideo reports whether the post media is a video.
func (p *Post) IsVideo() bool {
	return IsVideoURL(p.MediaURL)
}

// ThumbnailURL returns the preview URL when it differs from the media URL, else the media URL.
func (p *Post) ThumbnailURL() string {
	if p.PreviewURL != "" && p.PreviewURL != p.MediaURL {
		return p.PreviewURL
	}
	return p.MediaURL
}

// TagNames returns the names of the post's tags in stored order.
func (p *Post) TagNames() []string {
	names := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		names[i] = t.Name
	}
	return names
}

// Caption is the grid caption: the tag names, or "Post #<id>" for an untagged post.
func (p *Post) Caption() string {
	if len(p.Tags) == 0 {
		return "Post #" + p.ID
	}
	return strings.Join(p.TagNames(), " ")
}
