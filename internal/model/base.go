package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the columns every aggregate shares. DeletedAt is the
// tombstone: gorm filters rows with a non-null deleted_at from every query.
type Base struct {
	ID        string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func newBase() Base {
	return Base{ID: uuid.New().String(), CreatedAt: time.Now().UTC()}
}

func newBaseWithID(id string) Base {
	return Base{ID: id, CreatedAt: time.Now().UTC()}
}

func (b Base) Key() string { return b.ID }

func (b Base) IsDeleted() bool { return b.DeletedAt.Valid }

// MarkDeleted sets the tombstone. Repositories that do not go through gorm's
// soft-delete callback use it directly.
func (b *Base) MarkDeleted(at time.Time) {
	b.DeletedAt = gorm.DeletedAt{Time: at, Valid: true}
}
