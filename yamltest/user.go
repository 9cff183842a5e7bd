package yamltest

import (
	"bytes"
	"fmt"
)

// Gender of a FiveMinuteUser.
type Gender int

const (
	Male Gender = iota
	Female
)

func (g Gender) MarshalText() ([]byte, error) {
	switch g {
	case Male:
		return []byte("MALE"), nil
	case Female:
		return []byte("FEMALE"), nil
	}
	return nil, fmt.Errorf("unknown gender %d", int(g))
}

func (g *Gender) UnmarshalText(text []byte) error {
	switch string(text) {
	case "MALE":
		*g = Male
	case "FEMALE":
		*g = Female
	default:
		return fmt.Errorf("unknown gender '%s'", text)
	}
	return nil
}

// FiveMinuteUser is a small fixture covering strings,
// booleans, text marshalers and binary data.
type FiveMinuteUser struct {
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
	Verified  bool   `yaml:"verified"`
	Gender    Gender `yaml:"gender"`
	UserImage []byte `yaml:"userImage"`
}

// NewFiveMinuteUser creates a populated user.
func NewFiveMinuteUser(first, last string, verified bool, gender Gender, image []byte) *FiveMinuteUser {
	return &FiveMinuteUser{
		FirstName: first,
		LastName:  last,
		Verified:  verified,
		Gender:    gender,
		UserImage: image,
	}
}

// Equal reports whether u and other hold the same data.
func (u *FiveMinuteUser) Equal(other *FiveMinuteUser) bool {
	if u == other {
		return true
	}
	if u == nil || other == nil {
		return false
	}
	return u.FirstName == other.FirstName &&
		u.LastName == other.LastName &&
		u.Verified == other.Verified &&
		u.Gender == other.Gender &&
		bytes.Equal(u.UserImage, other.UserImage)
}
