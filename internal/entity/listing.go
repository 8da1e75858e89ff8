package entity

import "time"

// Listing is a marketplace listing owned by a seller
type Listing struct {
	Id           string `json:"id" gorm:"column:id;primaryKey"`
	SellerId     string `json:"seller_id" gorm:"column:seller_id;index"`
	BusinessName string `json:"business_name" gorm:"column:business_name"`
	CoverUrl     string `json:"cover_url" gorm:"column:cover_url"`
	ReviewCode   string `json:"review_code,omitempty" gorm:"column:review_code"`
	CreatedAt    int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt    int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Listing
func (Listing) TableName() string {
	return "listings"
}

// Preview returns the summary copied into conversations about this listing
func (l *Listing) Preview() ListingPreview {
	return ListingPreview{Title: l.BusinessName, Cover: l.CoverUrl}
}

// UsedReviewCode records that a user redeemed a listing's review code
type UsedReviewCode struct {
	Id        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ListingId string    `json:"listing_id" gorm:"column:listing_id;uniqueIndex:uk_code_user,priority:1;size:64"`
	Code      string    `json:"code" gorm:"column:code;uniqueIndex:uk_code_user,priority:2;size:32"`
	UserId    string    `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_code_user,priority:3;size:64"`
	UsedAt    time.Time `json:"used_at" gorm:"column:used_at;type:datetime(3)"`
}

// TableName returns the table name for UsedReviewCode
func (UsedReviewCode) TableName() string {
	return "used_review_codes"
}
