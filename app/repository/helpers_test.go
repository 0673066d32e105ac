package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestUser(t *testing.T, repos *Repositories, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Password: "not-a-real-hash"}
	require.NoError(t, repos.User.Create(u))
	return u
}

func newTestImage(t *testing.T, repos *Repositories, ownerID uint, url string, tags ...string) *models.Image {
	t.Helper()
	img := models.NewImage(url, nil, ownerID)
	require.NoError(t, repos.Image.Create(img, tags))
	return img
}

func imageIDs(images []models.Image) []uint {
	ids := make([]uint, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	return ids
}

func countImageTags(t *testing.T, db *gorm.DB, imageID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.ImageTag{}).Where("image_id = ?", imageID).Count(&n).Error)
	return n
}

// findImage loads an image by id regardless of owner.
func findImage(db *gorm.DB, id uint) (*models.Image, error) {
	var image models.Image
	if err := db.Preload("Tags").First(&image, id).Error; err != nil {
		return nil, err
	}
	return &image, nil
}
