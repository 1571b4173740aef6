package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Bouquet is a catalog product
type Bouquet struct {
	ID                 int64           `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	Description        string          `db:"description" json:"description"`
	Price              decimal.Decimal `db:"price" json:"price"`
	DiscountPercentage int             `db:"discount_percentage" json:"discount_percentage"`
	FinalPrice         decimal.Decimal `db:"final_price" json:"final_price"`
	CategoryID         *int64          `db:"category_id" json:"category_id,omitempty"`
	CategoryName       *string         `db:"category_name" json:"category_name,omitempty"`
	Images             pq.StringArray  `db:"images" json:"images"`
	IsAvailable        bool            `db:"is_available" json:"is_available"`
	IsFeatured         bool            `db:"is_featured" json:"is_featured"`
	ViewCount          int64           `db:"view_count" json:"view_count"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// BouquetPatch carries a partial bouquet update. Only fields that were
// present in the request are applied.
type BouquetPatch struct {
	Name               Optional[string]          `json:"name"`
	Description        Optional[string]          `json:"description"`
	Price              Optional[decimal.Decimal] `json:"price"`
	DiscountPercentage Optional[int]             `json:"discount_percentage"`
	CategoryID         Optional[*int64]          `json:"category_id"`
	Images             Optional[[]string]        `json:"images"`
	IsAvailable        Optional[bool]            `json:"is_available"`
	IsFeatured         Optional[bool]            `json:"is_featured"`
}

// Apply merges the present fields of the patch into b
func (p BouquetPatch) Apply(b *Bouquet) {
	b.Name = p.Name.OrElse(b.Name)
	b.Description = p.Description.OrElse(b.Description)
	b.Price = p.Price.OrElse(b.Price)
	b.DiscountPercentage = p.DiscountPercentage.OrElse(b.DiscountPercentage)
	b.CategoryID = p.CategoryID.OrElse(b.CategoryID)
	if p.Images.Set {
		b.Images = pq.StringArray(p.Images.Value)
	}
	b.IsAvailable = p.IsAvailable.OrElse(b.IsAvailable)
	b.IsFeatured = p.IsFeatured.OrElse(b.IsFeatured)
}

// BouquetSort is one of the supported catalog orderings
type BouquetSort string

const (
	BouquetSortNameAsc   BouquetSort = "name_asc"
	BouquetSortNameDesc  BouquetSort = "name_desc"
	BouquetSortPriceAsc  BouquetSort = "price_asc"
	BouquetSortPriceDesc BouquetSort = "price_desc"
	BouquetSortNewest    BouquetSort = "newest"
	BouquetSortPopular   BouquetSort = "popular"
)

// BouquetFilter narrows catalog listings. Nil fields are not applied.
type BouquetFilter struct {
	Search        string
	CategoryID    *int64
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	// AvailableOnly hides bouquets that are not for sale
	AvailableOnly bool
	SortBy        BouquetSort
	Limit         int
	Offset        int
}
