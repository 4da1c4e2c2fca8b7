package model

import "time"

// BadgeType identifies an entry in the badge catalog.
type BadgeType string

// Badge is a catalog entry. Points is the score the holder earns when the
// badge is awarded.
type Badge struct {
	Type        BadgeType `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Points      int64     `json:"points"`
}

// UserBadge records that a user holds a badge. (UserID, Type) is unique.
type UserBadge struct {
	UserID    string    `json:"userId"`
	Type      BadgeType `json:"type"`
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awardedAt"`
}
