package repository

import (
	"math/rand/v2"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// imageRepository implements the ImageRepository interface
type imageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new image repository instance
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

// Create stores a single image with its tags. An already stored URL is a conflict.
func (r *imageRepository) Create(image *models.Image, tags []string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		resolved, err := models.ResolveTags(tx, tags)
		if err != nil {
			return err
		}
		image.Tags = resolved
		return tx.Create(image).Error
	})
	return translate(err)
}

// BulkCreate creates one image per URL not yet stored, all sharing the same tags, and
// returns only the images it created.
func (r *imageRepository) BulkCreate(urls []string, tags []string, ownerID uint) ([]models.Image, error) {
	created := make([]models.Image, 0, len(urls))
	if len(urls) == 0 {
		return created, nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&models.Image{}).Where("url IN ?", urls).Pluck("url", &existing).Error; err != nil {
			return err
		}
		skip := make(map[string]struct{}, len(existing)+len(urls))
		for _, u := range existing {
			skip[u] = struct{}{}
		}

		var resolved []models.Tag
		for _, u := range urls {
			if _, ok := skip[u]; ok {
				continue
			}
			skip[u] = struct{}{}

			if resolved == nil {
				var err error
				if resolved, err = models.ResolveTags(tx, tags); err != nil {
					return err
				}
			}

			image := models.NewImage(u, nil, ownerID)
			image.Tags = resolved
			if err := tx.Create(image).Error; err != nil {
				return err
			}
			created = append(created, *image)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}

// getOwned loads an image only when it belongs to ownerID. Foreign images are not found.
func getOwned(db *gorm.DB, id, ownerID uint) (*models.Image, error) {
	var image models.Image
	err := db.Preload("Tags").Where("id = ? AND owner_id = ?", id, ownerID).First(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// List runs an owner-scoped listing. Total counts the filtered set before pagination.
func (r *imageRepository) List(query ImageQuery) (*ImagePage, error) {
	page := &ImagePage{Images: []models.Image{}}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := query.scope(tx.Model(&models.Image{})).Count(&page.Total).Error; err != nil {
			return err
		}
		if page.Total == 0 {
			return nil
		}
		return query.scope(tx).Preload("Tags").
			Order(orderBy(query.SortBy, query.SortOrder)).
			Offset(query.Offset).Limit(query.Limit).
			Find(&page.Images).Error
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Delete removes an owned image and its tag associations and returns the removed image.
func (r *imageRepository) Delete(id, ownerID uint) (*models.Image, error) {
	var image *models.Image
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if image, err = getOwned(tx, id, ownerID); err != nil {
			return err
		}
		if err := tx.Where("image_id = ?", id).Delete(&models.ImageTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Image{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

// BulkDelete removes every image among ids owned by ownerID. Unknown or foreign ids are ignored.
func (r *imageRepository) BulkDelete(ids []uint, ownerID uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&models.Image{}).Select("id").Where("id IN ? AND owner_id = ?", ids, ownerID)
		if err := tx.Where("image_id IN (?)", owned).Delete(&models.ImageTag{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ? AND owner_id = ?", ids, ownerID).Delete(&models.Image{}).Error
	})
}

// ReplaceTags clears all tags of an owned image and attaches the given ones.
func (r *imageRepository) ReplaceTags(id, ownerID uint, tags []string) (*models.Image, error) {
	var image *models.Image
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := getOwned(tx, id, ownerID); err != nil {
			return err
		}
		resolved, err := models.ResolveTags(tx, tags)
		if err != nil {
			return err
		}
		if err := tx.Where("image_id = ?", id).Delete(&models.ImageTag{}).Error; err != nil {
			return err
		}
		if err := linkTags(tx, id, resolved); err != nil {
			return err
		}
		image, err = getOwned(tx, id, ownerID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return image, nil
}

// AddTags unions tags into every owned image among ids. It fails with
// gorm.ErrRecordNotFound only when none of the ids resolve.
func (r *imageRepository) AddTags(ids []uint, ownerID uint, tags []string) ([]models.Image, error) {
	var images []models.Image
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if len(ids) == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Preload("Tags").Where("id IN ? AND owner_id = ?", ids, ownerID).
			Order("id ASC").Find(&images).Error; err != nil {
			return err
		}
		if len(images) == 0 {
			return gorm.ErrRecordNotFound
		}

		resolved, err := models.ResolveTags(tx, tags)
		if err != nil {
			return err
		}
		for i := range images {
			missing := make([]models.Tag, 0, len(resolved))
			for _, tag := range resolved {
				if !images[i].HasTag(tag.Name) {
					missing = append(missing, tag)
				}
			}
			if err := linkTags(tx, images[i].ID, missing); err != nil {
				return err
			}
			images[i].Tags = append(images[i].Tags, missing...)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return images, nil
}

// Rename sets the filename of an owned image.
func (r *imageRepository) Rename(id, ownerID uint, filename string) (*models.Image, error) {
	var image *models.Image
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if image, err = getOwned(tx, id, ownerID); err != nil {
			return err
		}
		if err := tx.Model(&models.Image{}).Where("id = ?", id).Update("filename", filename).Error; err != nil {
			return err
		}
		image.Filename = filename
		return nil
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

// Random picks a uniformly random image, optionally restricted to images carrying tag.
func (r *imageRepository) Random(tag string) (*models.Image, error) {
	var filter TagFilter
	if tag != "" {
		filter.All = []string{tag}
	}
	return r.RandomMatching(filter)
}

// RandomMatching picks a uniformly random image among those matching filter, system-wide.
// The candidates are counted and one offset is drawn over a stable id order in the same
// transaction.
func (r *imageRepository) RandomMatching(filter TagFilter) (*models.Image, error) {
	var image *models.Image
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := filter.Apply(tx.Model(&models.Image{})).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}

		var picked []models.Image
		err := filter.Apply(tx).Preload("Tags").
			Order("images.id ASC").Offset(rand.IntN(int(count))).Limit(1).
			Find(&picked).Error
		if err != nil {
			return err
		}
		if len(picked) == 0 {
			return gorm.ErrRecordNotFound
		}
		image = &picked[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

// Count returns the total number of images
func (r *imageRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Image{}).Count(&count).Error
	return count, err
}

// linkTags inserts join rows, skipping pairs that already exist.
func linkTags(tx *gorm.DB, imageID uint, tags []models.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	rows := make([]models.ImageTag, len(tags))
	for i, tag := range tags {
		rows[i] = models.ImageTag{ImageID: imageID, TagID: tag.ID}
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}
