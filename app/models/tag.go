package models

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTagConflict is returned when a tag could neither be created nor read back.
var ErrTagConflict = errors.New("tag conflict")

type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name" validate:"required,min=1,max=100"`
}

// FindOrCreate loads the tag with t.Name or creates it. The insert relies on the unique index:
// when a concurrent creator wins, the winner's row is read back, and when that row is not
// visible to db (e.g. a transaction snapshot predating the commit) ErrTagConflict is returned.
func (t *Tag) FindOrCreate(db *gorm.DB) error {
	result := db.Where("name = ?", t.Name).Limit(1).Find(t)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	candidate := Tag{Name: t.Name}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %q", ErrTagConflict, t.Name)
		}
		return err
	}

	var stored Tag
	result = db.Where("name = ?", t.Name).Limit(1).Find(&stored)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %q", ErrTagConflict, t.Name)
	}
	*t = stored
	return nil
}

// ResolveTags returns one tag per distinct name, creating missing ones. Input order is kept.
func ResolveTags(db *gorm.DB, names []string) ([]Tag, error) {
	tags := make([]Tag, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		tag := Tag{Name: name}
		if err := tag.FindOrCreate(db); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// TagNames flattens tags to their names.
func TagNames(tags []Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}
