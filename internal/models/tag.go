package models

import "strings"

// TagType classifies a tag.
type TagType string

const (
	TagGeneral   TagType = "general"
	TagArtist    TagType = "artist"
	TagCharacter TagType = "character"
	TagCopyright TagType = "copyright"
	TagMeta      TagType = "meta"
)

var tagTypes = map[TagType]struct{}{
	TagGeneral: {}, TagArtist: {}, TagCharacter: {}, TagCopyright: {}, TagMeta: {},
}

// ParseTagType returns the tag type for s, defaulting to general for unknown values.
func ParseTagType(s string) TagType {
	t := TagType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tagTypes[t]; ok {
		return t
	}
	return TagGeneral
}

// Tag is a named, typed label attached to posts.
type Tag struct {
	ID   int64   `json:"id,omitempty" db:"id"`
	Name string  `json:"name" db:"name"`
	Type TagType `json:"type" db:"type"`
	// Count is the number of posts carrying the tag, when the query computed it.
	Count int `json:"count,omitempty" db:"-"`
}

// ParseTag parses "name" or "type:name". Names are lowercased; an unknown type prefix
// is kept as part of the name.
func ParseTag(s string) Tag {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ':'); i > 0 && i < len(s)-1 {
		if _, ok := tagTypes[TagType(s[:i])]; ok {
			return Tag{Name: s[i+1:], Type: TagType(s[:i])}
		}
	}
	return Tag{Name: s, Type: TagGeneral}
}

// ParseTagList parses a whitespace separated tag list, dropping duplicates by name.
func ParseTagList(s string) []Tag {
	fields := strings.Fields(s)
	tags := make([]Tag, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		t := ParseTag(f)
		if t.Name == "" {
			continue
		}
		if _, ok := seen[t.Name]; ok {
			continue
		}
		seen[t.Name] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}
