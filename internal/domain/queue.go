package domain

import "time"

// Queue is a routing bucket used as a filter/label on tickets.
type Queue struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Color           string    `json:"color"`
	GreetingMessage string    `json:"greetingMessage"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ContainsQueue reports whether id is part of ids.
func ContainsQueue(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
