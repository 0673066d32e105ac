package repository

import (
	"github.com/ManuelReschke/PixelShelf/app/models"
)

// RandomForKey resolves an api key and draws a random image matching its tag sets.
// A key without any tags behaves exactly like the unconstrained public draw.
func RandomForKey(keys APIKeyRepository, images ImageRepository, key string) (*models.Image, error) {
	apiKey, err := keys.GetByKey(key)
	if err != nil {
		return nil, err
	}
	return images.RandomMatching(FilterForKey(apiKey))
}

// FilterForKey converts the key's AND and OR tag sets into a TagFilter.
func FilterForKey(apiKey *models.APIKey) TagFilter {
	if apiKey.Unconstrained() {
		return TagFilter{}
	}
	return TagFilter{
		All: models.TagNames(apiKey.TagsAnd),
		Any: models.TagNames(apiKey.TagsOr),
	}
}
