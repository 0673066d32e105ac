package repository

import (
	"strings"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultSortColumn = "created_at"

// sortableColumns whitelists the image columns a listing may be ordered by.
var sortableColumns = map[string]struct{}{
	"id":          {},
	"url":         {},
	"description": {},
	"filename":    {},
	"filetype":    {},
	"created_at":  {},
}

// ImageQuery describes an owner-scoped, filtered and paginated image listing.
type ImageQuery struct {
	OwnerID      uint
	Offset       int
	Limit        int
	Tags         []string
	SortBy       string
	SortOrder    string
	FilenameLike string
}

// ImagePage is one page of a listing plus the filtered total before pagination.
type ImagePage struct {
	Total  int64          `json:"total"`
	Images []models.Image `json:"images"`
}

// TagFilter restricts images by tag names. All entries must be present on an image and at
// least one of Any must be, each clause being vacuous when its list is empty.
type TagFilter struct {
	All []string
	Any []string
}

// Empty reports whether the filter matches every image.
func (f TagFilter) Empty() bool {
	return len(f.All) == 0 && len(f.Any) == 0
}

// Apply adds one EXISTS condition per required tag and a single EXISTS ... IN condition for
// the optional set. No join is involved, so matching images are never duplicated.
func (f TagFilter) Apply(db *gorm.DB) *gorm.DB {
	for _, name := range f.All {
		db = db.Where("EXISTS (SELECT 1 FROM image_tags it JOIN tags t ON t.id = it.tag_id WHERE it.image_id = images.id AND t.name = ?)", name)
	}
	if len(f.Any) > 0 {
		db = db.Where("EXISTS (SELECT 1 FROM image_tags it JOIN tags t ON t.id = it.tag_id WHERE it.image_id = images.id AND t.name IN ?)", f.Any)
	}
	return db
}

// SortColumn returns name when it is sortable and the default column otherwise.
func SortColumn(name string) string {
	if _, ok := sortableColumns[name]; ok {
		return name
	}
	return DefaultSortColumn
}

// orderBy sorts by the resolved column and breaks ties by id in the same direction.
// Only "asc" (any case) sorts ascending.
func orderBy(sortBy, sortOrder string) clause.OrderBy {
	desc := !strings.EqualFold(sortOrder, "asc")
	column := SortColumn(sortBy)

	columns := []clause.OrderByColumn{
		{Column: clause.Column{Table: "images", Name: column}, Desc: desc},
	}
	if column != "id" {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Table: "images", Name: "id"}, Desc: desc})
	}
	return clause.OrderBy{Columns: columns}
}

// escapeLike makes s match literally inside a LIKE pattern using '!' as escape character.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

func (q ImageQuery) scope(db *gorm.DB) *gorm.DB {
	db = db.Where("images.owner_id = ?", q.OwnerID)
	db = TagFilter{All: q.Tags}.Apply(db)
	if q.FilenameLike != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.FilenameLike)) + "%"
		db = db.Where("LOWER(images.filename) LIKE ? ESCAPE '!'", pattern)
	}
	return db
}
