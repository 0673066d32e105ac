package repository

import (
	"github.com/ManuelReschke/PixelShelf/app/models"
	"gorm.io/gorm"
)

type apiKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository creates a new api key repository instance
func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

// Create stores the key with both tag sets resolved. A taken display name is a conflict.
func (r *apiKeyRepository) Create(key *models.APIKey, tagsAnd, tagsOr []string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if key.TagsAnd, err = models.ResolveTags(tx, tagsAnd); err != nil {
			return err
		}
		if key.TagsOr, err = models.ResolveTags(tx, tagsOr); err != nil {
			return err
		}
		return tx.Create(key).Error
	})
	return translate(err)
}

// GetByKey looks a key up by its opaque value, with both tag sets loaded.
func (r *apiKeyRepository) GetByKey(key string) (*models.APIKey, error) {
	// a zero-value struct condition would match any row
	if key == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var apiKey models.APIKey
	err := r.db.Preload("TagsAnd").Preload("TagsOr").Where(&models.APIKey{Key: key}).First(&apiKey).Error
	if err != nil {
		return nil, err
	}
	return &apiKey, nil
}

func (r *apiKeyRepository) ListByOwner(ownerID uint, offset, limit int) ([]models.APIKey, error) {
	keys := []models.APIKey{}
	err := r.db.Preload("TagsAnd").Preload("TagsOr").Where("owner_id = ?", ownerID).
		Order("id ASC").Offset(offset).Limit(limit).Find(&keys).Error
	return keys, err
}

// Delete removes an owned key and its tag associations and returns the removed key.
func (r *apiKeyRepository) Delete(id, ownerID uint) (*models.APIKey, error) {
	var apiKey models.APIKey
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("TagsAnd").Preload("TagsOr").
			Where("id = ? AND owner_id = ?", id, ownerID).First(&apiKey).Error; err != nil {
			return err
		}
		for _, table := range []string{"api_key_tags_and", "api_key_tags_or"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE api_key_id = ?", id).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.APIKey{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &apiKey, nil
}
