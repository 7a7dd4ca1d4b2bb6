package models

import "time"

// UnknownBrandCMSID keys the sentinel brand that owns placeholder products.
const UnknownBrandCMSID = "unknown"

// Brand groups products. Rows mirror brands published in the content store.
type Brand struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	CMSID     string    `gorm:"column:cms_id;type:varchar(128);not null;uniqueIndex" json:"cms_id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Brand) TableName() string { return "brand" }

// Product is the local copy of a content-store product.
// Placeholder products are created when the content store cannot resolve an
// external ID; they are re-synced on the next lookup.
type Product struct {
	ID          string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	CMSID       string `gorm:"column:cms_id;type:varchar(128);not null;uniqueIndex" json:"cms_id"`
	BrandID     string `gorm:"column:brand_id;type:uuid;not null;index" json:"brand_id"`
	Brand       *Brand `gorm:"foreignKey:BrandID" json:"brand,omitempty"`
	Name        string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Slug        string `gorm:"column:slug;type:varchar(255)" json:"slug"`
	Published   bool   `gorm:"column:published;not null;default:false" json:"published"`
	Placeholder bool   `gorm:"column:placeholder;not null;default:false" json:"placeholder"`
	// ReviewCount is the popularity signal used to fill shipments.
	ReviewCount int64      `gorm:"column:review_count;not null;default:0;index" json:"review_count"`
	SyncedAt    *time.Time `gorm:"column:synced_at;default:null" json:"synced_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Product) TableName() string { return "product" }

// Favorite is a subscriber's liked product.
type Favorite struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:unique_user_id_product_id,priority:1" json:"user_id"`
	ProductID string    `gorm:"column:product_id;type:uuid;not null;uniqueIndex:unique_user_id_product_id,priority:2" json:"product_id"`
	Product   *Product  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Favorite) TableName() string { return "favorite" }

// Review is a subscriber rating. Each row counts toward Product.ReviewCount.
type Review struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	ProductID string    `gorm:"column:product_id;type:uuid;not null;index" json:"product_id"`
	Rating    int       `gorm:"column:rating;not null" json:"rating"`
	Body      string    `gorm:"column:body;type:text" json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Review) TableName() string { return "review" }
