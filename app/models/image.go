package models

import (
	"net/url"
	"path"
	"strings"
	"time"
)

type Image struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	URL         string    `gorm:"type:varchar(768);uniqueIndex;not null" json:"url"`
	Description *string   `gorm:"type:text" json:"description"`
	Filename    string    `gorm:"type:varchar(255)" json:"filename"`
	Filetype    string    `gorm:"type:varchar(50)" json:"filetype"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	Owner       *User     `gorm:"foreignKey:OwnerID" json:"-"`
	Tags        []Tag     `gorm:"many2many:image_tags;" json:"tags"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NewImage derives filename and filetype from the URL and returns an unsaved image.
func NewImage(rawURL string, description *string, ownerID uint) *Image {
	filename := FilenameFromURL(rawURL)
	return &Image{
		URL:         rawURL,
		Description: description,
		Filename:    filename,
		Filetype:    path.Ext(filename),
		OwnerID:     ownerID,
	}
}

// FilenameFromURL returns the URL-decoded basename of the raw URL string.
// The whole string is treated as a path, so query strings and fragments stay part of the name.
func FilenameFromURL(rawURL string) string {
	base := rawURL
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	decoded, err := url.PathUnescape(base)
	if err != nil {
		return base
	}
	return decoded
}

// HasTag reports whether the image already carries a tag with the given name.
func (i *Image) HasTag(name string) bool {
	for _, t := range i.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}
