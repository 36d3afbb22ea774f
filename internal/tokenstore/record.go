package tokenstore

import "time"

const (
	// Collection / DocumentID address the single credential document. The
	// deployment is single-tenant: one mall, one token pair.
	Collection = "cafe24_tokens"
	DocumentID = "main_token"

	// DefaultExpiresIn is the vendor's nominal session length in seconds,
	// substituted when a token response carries a missing or invalid
	// expires_in value.
	DefaultExpiresIn = 7200
)

// AccessToken is the persisted access credential with its absolute expiry
// (epoch milliseconds).
type AccessToken struct {
	Token     string `bson:"access_token" json:"access_token"`
	ExpiresAt int64  `bson:"expires_at" json:"expires_at"`
}

// Record is the single credential document for the connected mall.
type Record struct {
	ID           string       `bson:"_id" json:"id"`
	AccessToken  *AccessToken `bson:"access_token,omitempty" json:"access_token,omitempty"`
	RefreshToken string       `bson:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	CreatedAt    time.Time    `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt    time.Time    `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}
