package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeMembership(t *testing.T, tavernID string) *Membership {
	t.Helper()
	m, err := NewMembership("member-"+tavernID, tavernID, StatusCommon)
	require.NoError(t, err)
	return m
}

func TestNewPost(t *testing.T) {
	author := activeMembership(t, "t1")

	tests := []struct {
		name    string
		title   string
		content string
		kind    ErrorKind
	}{
		{"valid", "Session recap", "The party finally reached the tower.", 0},
		{"title too short", "Hi", "The party finally reached the tower.", KindInvalid},
		{"title too long", strings.Repeat("t", 201), "The party finally reached the tower.", KindInvalid},
		{"content too short", "Session recap", "Too short", KindInvalid},
		{"content too long", "Session recap", strings.Repeat("c", 10001), KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPost("1001", author, tt.title, tt.content)
			if tt.kind != 0 {
				assert.True(t, IsKind(err, tt.kind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "1001", p.ID)
			assert.Equal(t, "t1", p.TavernID)
			assert.Equal(t, author.ID, p.MembershipID)
		})
	}

	t.Run("inactive author", func(t *testing.T) {
		inactive := activeMembership(t, "t1")
		inactive.IsActive = false
		_, err := NewPost("1002", inactive, "Session recap", "The party finally reached the tower.")
		assert.True(t, IsKind(err, KindForbidden))
	})
}

func TestValidateImageURL(t *testing.T) {
	tests := map[string]bool{
		"https://cdn.example.com/posts/1.png":  true,
		"http://cdn.example.com/posts/1.JPG":   true,
		"https://cdn.example.com/posts/1.jpeg": true,
		"https://cdn.example.com/posts/1.gif":  false,
		"ftp://cdn.example.com/posts/1.png":    false,
		"/posts/1.png":                         false,
		"not a url at all":                     false,
		"https:///1.png":                       false,
	}
	for raw, ok := range tests {
		t.Run(raw, func(t *testing.T) {
			err := ValidateImageURL(raw)
			if ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsKind(err, KindInvalid))
			}
		})
	}
}

func TestPost_AttachImage(t *testing.T) {
	p, err := NewPost("1001", activeMembership(t, "t1"), "Session recap", "The party finally reached the tower.")
	require.NoError(t, err)

	require.Error(t, p.AttachImage("https://cdn.example.com/x.bmp"))
	assert.Nil(t, p.ImageURL)

	require.NoError(t, p.AttachImage("https://cdn.example.com/x.png"))
	assert.Equal(t, "https://cdn.example.com/x.png", *p.ImageURL)
}

func TestNewLikeAndComment(t *testing.T) {
	author := activeMembership(t, "t1")
	post, err := NewPost("1001", author, "Session recap", "The party finally reached the tower.")
	require.NoError(t, err)

	t.Run("like from another tavern", func(t *testing.T) {
		_, err := NewLike(activeMembership(t, "t2"), post)
		assert.True(t, IsKind(err, KindForbidden))
	})

	t.Run("like", func(t *testing.T) {
		like, err := NewLike(author, post)
		require.NoError(t, err)
		assert.Equal(t, post.ID, like.PostID)
	})

	t.Run("reply", func(t *testing.T) {
		c, err := NewComment(author, post, "Nice!", strPtr("parent-1"))
		require.NoError(t, err)
		assert.Equal(t, "parent-1", *c.ParentCommentID)
	})

	t.Run("blank parent is ignored", func(t *testing.T) {
		c, err := NewComment(author, post, "Nice!", strPtr(" "))
		require.NoError(t, err)
		assert.Nil(t, c.ParentCommentID)
	})

	t.Run("empty comment", func(t *testing.T) {
		_, err := NewComment(author, post, "   ", nil)
		assert.True(t, IsKind(err, KindInvalid))
	})
}
