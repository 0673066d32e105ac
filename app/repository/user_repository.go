package repository

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return translate(r.db.Create(user).Error)
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by exact username
func (r *userRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return translate(r.db.Save(user).Error)
}

// Delete removes a user together with their images, api keys and all association rows.
func (r *userRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		imageIDs := tx.Model(&models.Image{}).Select("id").Where("owner_id = ?", id)
		if err := tx.Where("image_id IN (?)", imageIDs).Delete(&models.ImageTag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", id).Delete(&models.Image{}).Error; err != nil {
			return err
		}

		keyIDs := tx.Model(&models.APIKey{}).Select("id").Where("owner_id = ?", id)
		for _, table := range []string{"api_key_tags_and", "api_key_tags_or"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE api_key_id IN (?)", keyIDs).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("owner_id = ?", id).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.User{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("id ASC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// EnsureAdmin creates the admin account when missing. The bool reports whether it was created.
func (r *userRepository) EnsureAdmin(password string) (*models.User, bool, error) {
	existing, err := r.GetByUsername(models.ADMIN_USERNAME)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	admin, err := models.CreateUser(models.ADMIN_USERNAME, password, true)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build admin user: %w", err)
	}
	if err := r.Create(admin); err != nil {
		// another instance bootstrapped concurrently
		if errors.Is(err, ErrConflict) {
			existing, getErr := r.GetByUsername(models.ADMIN_USERNAME)
			return existing, false, getErr
		}
		return nil, false, err
	}
	return admin, true, nil
}
