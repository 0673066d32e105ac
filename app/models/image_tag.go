package models

// ImageTag is the join row behind Image.Tags.
type ImageTag struct {
	ImageID uint `gorm:"primaryKey;autoIncrement:false" json:"image_id"`
	TagID   uint `gorm:"primaryKey;autoIncrement:false" json:"tag_id"`
}

func (ImageTag) TableName() string {
	return "image_tags"
}
