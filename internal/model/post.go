package model

import (
	"net/url"
	"path"
	"strings"
)

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImageExtension reports whether ext (with dot) is an accepted image type.
func IsImageExtension(ext string) bool {
	return allowedImageExtensions[strings.ToLower(ext)]
}

// ValidateImageURL accepts absolute http(s) URLs pointing at a jpg/jpeg/png.
func ValidateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Invalid("image url must be an absolute url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Invalid("image url must use http or https")
	}
	if !IsImageExtension(path.Ext(u.Path)) {
		return Invalid("image must be a .jpg, .jpeg or .png file")
	}
	return nil
}

type Post struct {
	Base
	TavernID     string  `gorm:"not null;type:varchar(64);index" json:"tavern_id"`
	MembershipID string  `gorm:"not null;type:varchar(64);index" json:"membership_id"`
	Title        string  `gorm:"not null;type:varchar(200)" json:"title"`
	Content      string  `gorm:"not null;type:text" json:"content"`
	ImageURL     *string `gorm:"type:varchar(512)" json:"image_url,omitempty"`
}

func (Post) TableName() string {
	return "posts"
}

// NewPost takes an explicit id so image bytes can be stored under it before
// the post row exists.
func NewPost(id string, author *Membership, title, content string) (*Post, error) {
	if id == "" {
		return nil, Invalid("post id is required")
	}
	if !author.Active() {
		return nil, Forbidden("only active members can post")
	}
	if err := checkRequired("title", title, 3, 200); err != nil {
		return nil, err
	}
	if err := checkRequired("content", content, 10, 10000); err != nil {
		return nil, err
	}
	return &Post{
		Base:         newBaseWithID(id),
		TavernID:     author.TavernID,
		MembershipID: author.ID,
		Title:        title,
		Content:      content,
	}, nil
}

func (p *Post) AttachImage(ref string) error {
	if err := ValidateImageURL(ref); err != nil {
		return err
	}
	p.ImageURL = &ref
	return nil
}

// Like is unique per (membership, post); the toggle workflow keeps it so.
type Like struct {
	Base
	MembershipID string `gorm:"not null;type:varchar(64);index:idx_like_pair" json:"membership_id"`
	PostID       string `gorm:"not null;type:varchar(64);index:idx_like_pair;index" json:"post_id"`
}

func (Like) TableName() string {
	return "likes"
}

func NewLike(liker *Membership, post *Post) (*Like, error) {
	if !liker.Active() {
		return nil, Forbidden("only active members can like posts")
	}
	if liker.TavernID != post.TavernID {
		return nil, Forbidden("post belongs to another tavern")
	}
	return &Like{Base: newBase(), MembershipID: liker.ID, PostID: post.ID}, nil
}

// Comment may reply to another comment through ParentCommentID. Only one
// level of threading is rendered.
type Comment struct {
	Base
	PostID          string  `gorm:"not null;type:varchar(64);index" json:"post_id"`
	MembershipID    string  `gorm:"not null;type:varchar(64)" json:"membership_id"`
	Content         string  `gorm:"not null;type:varchar(2000)" json:"content"`
	ParentCommentID *string `gorm:"type:varchar(64)" json:"parent_comment_id,omitempty"`
}

func (Comment) TableName() string {
	return "comments"
}

func NewComment(author *Membership, post *Post, content string, parentCommentID *string) (*Comment, error) {
	if !author.Active() {
		return nil, Forbidden("only active members can comment")
	}
	if author.TavernID != post.TavernID {
		return nil, Forbidden("post belongs to another tavern")
	}
	if err := checkRequired("comment", content, 1, 2000); err != nil {
		return nil, err
	}
	return &Comment{
		Base:            newBase(),
		PostID:          post.ID,
		MembershipID:    author.ID,
		Content:         content,
		ParentCommentID: normalizeOptional(parentCommentID),
	}, nil
}
