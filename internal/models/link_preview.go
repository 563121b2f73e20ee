package models

import "time"

// LinkPreview caches page metadata fetched for a location URL.
type LinkPreview struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	URL         string    `gorm:"uniqueIndex;size:768;not null" json:"url"`
	Title       string    `gorm:"size:300" json:"title"`
	Description string    `gorm:"size:1000" json:"description"`
	ImageURL    string    `gorm:"size:1000" json:"image_url"`
	SiteName    string    `gorm:"size:200" json:"site_name"`
	FetchedAt   time.Time `gorm:"index" json:"fetched_at"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

func (LinkPreview) TableName() string { return "link_previews" }

// Fresh reports whether the entry is younger than ttl at now.
func (p *LinkPreview) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.FetchedAt) < ttl
}
