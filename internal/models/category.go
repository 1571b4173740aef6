package models

import (
	"time"
)

// Category groups bouquets in the catalog
type Category struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CategoryPatch carries a partial category update
type CategoryPatch struct {
	Name        Optional[string] `json:"name"`
	Description Optional[string] `json:"description"`
	ImageURL    Optional[string] `json:"image_url"`
	SortOrder   Optional[int]    `json:"sort_order"`
	IsActive    Optional[bool]   `json:"is_active"`
}

// Apply merges the present fields of the patch into c
func (p CategoryPatch) Apply(c *Category) {
	c.Name = p.Name.OrElse(c.Name)
	c.Description = p.Description.OrElse(c.Description)
	c.ImageURL = p.ImageURL.OrElse(c.ImageURL)
	c.SortOrder = p.SortOrder.OrElse(c.SortOrder)
	c.IsActive = p.IsActive.OrElse(c.IsActive)
}
