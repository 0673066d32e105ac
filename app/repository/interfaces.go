package repository

import (
	"errors"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"gorm.io/gorm"
)

// ErrConflict marks uniqueness violations (duplicate username, URL, key name or a tag race).
var ErrConflict = errors.New("conflict")

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	EnsureAdmin(password string) (*models.User, bool, error)
}

// ImageRepository defines the interface for image-related database operations
type ImageRepository interface {
	Create(image *models.Image, tags []string) error
	BulkCreate(urls []string, tags []string, ownerID uint) ([]models.Image, error)
	List(query ImageQuery) (*ImagePage, error)
	Delete(id, ownerID uint) (*models.Image, error)
	BulkDelete(ids []uint, ownerID uint) error
	ReplaceTags(id, ownerID uint, tags []string) (*models.Image, error)
	AddTags(ids []uint, ownerID uint, tags []string) ([]models.Image, error)
	Rename(id, ownerID uint, filename string) (*models.Image, error)
	Random(tag string) (*models.Image, error)
	RandomMatching(filter TagFilter) (*models.Image, error)
	Count() (int64, error)
}

// TagRepository defines the interface for tag statistics. Tags are resolved through
// models.ResolveTags inside the transaction of the image or key operation using them.
type TagRepository interface {
	Count() (int64, error)
}

// APIKeyRepository defines the interface for api key operations
type APIKeyRepository interface {
	Create(key *models.APIKey, tagsAnd, tagsOr []string) error
	GetByKey(key string) (*models.APIKey, error)
	ListByOwner(ownerID uint, offset, limit int) ([]models.APIKey, error)
	Delete(id, ownerID uint) (*models.APIKey, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User   UserRepository
	Image  ImageRepository
	Tag    TagRepository
	APIKey APIKeyRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:   NewUserRepository(db),
		Image:  NewImageRepository(db),
		Tag:    NewTagRepository(db),
		APIKey: NewAPIKeyRepository(db),
	}
}

// translate maps store-level uniqueness failures onto ErrConflict and leaves everything else untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, models.ErrTagConflict) {
		return errors.Join(ErrConflict, err)
	}
	return err
}
