package models

import "time"

// User represents a mail account owner (mapped from token claims)
type User struct {
	ID         string          `bson:"_id,omitempty" json:"id"`
	Sub        string          `bson:"sub" json:"sub"` // token subject, the acting user id
	Email      string          `bson:"email" json:"email"`
	Name       string          `bson:"name" json:"name"`
	Identities []LocalIdentity `bson:"identities,omitempty" json:"identities,omitempty"`
	CreatedAt  time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// LocalIdentity is an address the user may send from.
type LocalIdentity struct {
	IdentityID  string `bson:"identityId" json:"identity_id"`
	Address     string `bson:"address" json:"address"`
	Protocol    string `bson:"protocol" json:"protocol"`
	DisplayName string `bson:"displayName,omitempty" json:"display_name,omitempty"`
}
