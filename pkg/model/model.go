// Package model holds the JSON representation of a person as exchanged with the REST API, for
// use by clients of the service.
package model

import "time"

// Person is a person as returned by the service. Clients only send FirstName, LastName and
// Gender when creating a person, and additionally PersonalId when updating one.
type Person struct {
	Id         int64     `json:"id,omitempty"`
	PersonalId string    `json:"personalId,omitempty"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Gender     string    `json:"gender,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// Error is the body of every failed request.
type Error struct {
	Message string `json:"message"`
}
