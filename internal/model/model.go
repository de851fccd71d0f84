package model

import (
	"strings"
	"time"
)

// Person is the data structure for an individual registered with the service.
type Person struct {
	Id         int64     `json:"id"         db:"id"`
	PersonalId string    `json:"personalId" db:"personal_id"`
	FirstName  string    `json:"firstName"  db:"firstname"`
	LastName   string    `json:"lastName"   db:"lastname"`
	Gender     string    `json:"gender"     db:"gender"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"  db:"updated_at"`
	Version    int64     `json:"-"          db:"version"`
}

// In returns a copy of the person with both timestamps expressed in loc.
func (p Person) In(loc *time.Location) Person {
	p.CreatedAt = p.CreatedAt.In(loc)
	p.UpdatedAt = p.UpdatedAt.In(loc)
	return p
}

// Gender selects the digit parity of the personal id suffix.
type Gender int

const (
	// GenderFemale is the default for every value other than "male".
	GenderFemale Gender = iota
	GenderMale
)

// ParseGender maps the free-text gender of a person onto a Gender. Only a case-insensitive
// "male" yields GenderMale; everything else, including the empty string and "male" padded
// with whitespace, is GenderFemale.
func ParseGender(s string) Gender {
	if strings.EqualFold(s, "male") {
		return GenderMale
	}
	return GenderFemale
}

func (g Gender) String() string {
	if g == GenderMale {
		return "male"
	}
	return "female"
}
