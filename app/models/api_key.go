package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey grants unauthenticated callers access to a random image restricted by two tag sets.
type APIKey struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"type:char(36);uniqueIndex;not null" json:"key"`
	Name      string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"name" validate:"required,min=1,max=150"`
	OwnerID   uint      `gorm:"index;not null" json:"owner_id"`
	Owner     *User     `gorm:"foreignKey:OwnerID" json:"-"`
	TagsAnd   []Tag     `gorm:"many2many:api_key_tags_and;" json:"tags_and"`
	TagsOr    []Tag     `gorm:"many2many:api_key_tags_or;" json:"tags_or"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// BeforeCreate generates the opaque key when none is set.
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.Key == "" {
		k.Key = uuid.New().String()
	}
	return nil
}

// Unconstrained reports whether the key carries no tag restriction at all.
func (k *APIKey) Unconstrained() bool {
	return len(k.TagsAnd) == 0 && len(k.TagsOr) == 0
}
