package models

import (
	"testing"
)

func TestIsVideoURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"", false},
		{"https://cdn.example.com/a.mp4", true},
		{"https://cdn.example.com/a.WEBM", true},
		{"https://cdn.example.com/a.mov?token=1", true},
		{"https://cdn.example.com/a.mkv#t=3", false},
		{"https://cdn.example.com/a.png", false},
		{"https://cdn.example.com/mp4/a.jpg", false},
	}
	for _, tt := range tests {
		if got := IsVideoURL(tt.url); got != tt.want {
			t.Errorf("IsVideoURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestPost_ThumbnailAndCaption(t *testing.T) {
	p := &Post{ID: "7", MediaURL: "m.png"}
	if p.ThumbnailURL() != "m.png" {
		t.Errorf("thumbnail without preview: got %s", p.ThumbnailURL())
	}
	p.PreviewURL = "m.png"
	if p.ThumbnailURL() != "m.png" {
		t.Errorf("thumbnail with identical preview: got %s", p.ThumbnailURL())
	}
	p.PreviewURL = "p.jpg"
	if p.ThumbnailURL() != "p.jpg" {
		t.Errorf("thumbnail with preview: got %s", p.ThumbnailURL())
	}
	if p.Caption() != "Post #7" {
		t.Errorf("caption untagged: got %s", p.Caption())
	}
	p.Tags = []Tag{{Name: "cat"}, {Name: "cute"}}
	if p.Caption() != "cat cute" {
		t.Errorf("caption tagged: got %s", p.Caption())
	}
}

func TestParseRatingSet(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "safe"},
		{"explicit,safe", "safe,explicit"},
		{"QUESTIONABLE", "questionable"},
		{"bogus", "safe"},
		{"explicit,explicit,bogus", "explicit"},
	}
	for _, tt := range tests {
		if got := ParseRatingSet(tt.in).String(); got != tt.want {
			t.Errorf("ParseRatingSet(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if !DefaultRatings().IsDefault() {
		t.Error("default ratings should be {safe}")
	}
	if NewRatingSet(RatingSafe, RatingExplicit).IsDefault() {
		t.Error("{safe,explicit} is not the default set")
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		in   string
		want Tag
	}{
		{"Cat", Tag{Name: "cat", Type: TagGeneral}},
		{"artist:Bob", Tag{Name: "bob", Type: TagArtist}},
		{"foo:bar", Tag{Name: "foo:bar", Type: TagGeneral}},
		{"artist:", Tag{Name: "artist:", Type: TagGeneral}},
	}
	for _, tt := range tests {
		if got := ParseTag(tt.in); got != tt.want {
			t.Errorf("ParseTag(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	list := ParseTagList("cat  character:miku cat")
	if len(list) != 2 || list[1].Type != TagCharacter {
		t.Errorf("ParseTagList: got %+v", list)
	}
	if ParseTagType("COPYRIGHT") != TagCopyright || ParseTagType("x") != TagGeneral {
		t.Error("ParseTagType mismatch")
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 50, 1},
		{1, 50, 1},
		{50, 50, 1},
		{51, 50, 2},
		{150, 50, 3},
		{10, 0, 1},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}
