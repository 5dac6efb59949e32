package models

// DefaultAvatar is the reserved avatar filename every profile starts with.
// The file itself must exist in the upload directory and is never deleted.
const DefaultAvatar = "default.jpg"

// Profile is the one-to-one extension of a user holding their avatar.
type Profile struct {
	UserID string `json:"userId"`
	Image  string `json:"image"`
}

// IconPath returns the public path the avatar is served under.
func (p Profile) IconPath() string {
	return "images/" + p.Image
}
