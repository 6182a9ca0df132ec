package model

import "time"

// FeedRecord is one daily report extracted from the news feed.
// Primary and Secondary are the raw daily increments as printed by the source.
type FeedRecord struct {
	Date      time.Time `json:"date"`
	Primary   string    `json:"primary"`
	Secondary string    `json:"secondary"`
}
