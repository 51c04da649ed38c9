package models

import "time"

// User is a user directory entry.
type User struct {
	ID         string    `db:"id" json:"id"`
	Username   string    `db:"username" json:"username"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	ProfileImg string    `db:"profile_img" json:"profile_img"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// UserSummary holds the display fields attached to outgoing messages.
type UserSummary struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ProfileImg string `json:"profile_img,omitempty"`
}

func (u User) Summary() UserSummary {
	return UserSummary{
		ID:         u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		ProfileImg: u.ProfileImg,
	}
}

// UsersByID indexes users by id.
func UsersByID(users []User) map[string]User {
	out := make(map[string]User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out
}
