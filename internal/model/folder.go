package model

import (
	"path/filepath"
	"regexp"
	"strings"
)

var folderNamePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

type Folder struct {
	Base
	MembershipID string `gorm:"not null;type:varchar(64);index" json:"membership_id"`
	Name         string `gorm:"not null;type:varchar(100)" json:"name"`
}

func (Folder) TableName() string {
	return "folders"
}

func NewFolder(owner *Membership, name string) (*Folder, error) {
	if !owner.Active() {
		return nil, Forbidden("folders can only be assigned to active members")
	}
	if name == "" {
		return nil, Invalid("folder name is required")
	}
	if len(name) > 100 {
		return nil, Invalid("folder name must be at most 100 characters")
	}
	if !folderNamePattern.MatchString(name) {
		return nil, Invalid("folder name may only contain letters and digits")
	}
	return &Folder{Base: newBase(), MembershipID: owner.ID, Name: name}, nil
}

// Item is a stored file. BlobKey addresses its bytes in the blob store.
type Item struct {
	Base
	FolderID  string  `gorm:"not null;type:varchar(64);index" json:"folder_id"`
	Name      string  `gorm:"not null;type:varchar(255)" json:"name"`
	Extension string  `gorm:"type:varchar(32)" json:"extension"`
	Size      int64   `gorm:"not null" json:"size"`
	Note      *string `gorm:"type:varchar(500)" json:"note,omitempty"`
	BlobKey   string  `gorm:"not null;type:varchar(255)" json:"-"`
	URL       string  `gorm:"type:varchar(512)" json:"url"`
}

func (Item) TableName() string {
	return "items"
}

// SplitFileName separates "map.pdf" into ("map", ".pdf"). The extension is
// lower-cased; a name without extension yields "".
func SplitFileName(filename string) (name, ext string, err error) {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == "/" || base == "" {
		return "", "", Invalid("file name is required")
	}
	ext = filepath.Ext(base)
	name = strings.TrimSuffix(base, ext)
	if strings.TrimSpace(name) == "" {
		return "", "", Invalid("file name is required")
	}
	if err := checkLength("file name", name, 1, 255); err != nil {
		return "", "", err
	}
	if len(ext) > 32 {
		return "", "", Invalid("file extension is too long")
	}
	return name, strings.ToLower(ext), nil
}

// NewItem takes an explicit id because the bytes are stored under it before
// the metadata row is written.
func NewItem(id string, folder *Folder, filename string, size int64, note *string) (*Item, error) {
	if id == "" {
		return nil, Invalid("item id is required")
	}
	name, ext, err := SplitFileName(filename)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, Invalid("file is empty")
	}
	note = normalizeOptional(note)
	if err := checkOptional("note", note, 1, 500); err != nil {
		return nil, err
	}
	return &Item{
		Base:      newBaseWithID(id),
		FolderID:  folder.ID,
		Name:      name,
		Extension: ext,
		Size:      size,
		Note:      note,
		BlobKey:   "items/" + id + ext,
	}, nil
}

// FileName is the name the item was uploaded as.
func (i *Item) FileName() string {
	return i.Name + i.Extension
}
