package schemas

import "time"

// Marketplace identifies the regional storefront a brand sells on.
type Marketplace string

const (
	MarketplaceUS Marketplace = "US"
	MarketplaceCA Marketplace = "CA"
	MarketplaceMX Marketplace = "MX"
	MarketplaceUK Marketplace = "UK"
	MarketplaceDE Marketplace = "DE"
)

// Marketplaces lists every supported marketplace in display order.
var Marketplaces = []Marketplace{MarketplaceUS, MarketplaceCA, MarketplaceMX, MarketplaceUK, MarketplaceDE}

// Valid reports whether m is one of the supported marketplaces.
func (m Marketplace) Valid() bool {
	for _, known := range Marketplaces {
		if m == known {
			return true
		}
	}
	return false
}

// Account is a set of seller portal credentials. Password and TwoFAKey hold
// encrypted bundles when read from the store and are never serialized.
type Account struct {
	ID          string    `json:"id"`
	AccountName string    `json:"account_name"`
	Username    string    `json:"username"`
	Password    string    `json:"-"`
	TwoFAKey    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Brand is a storefront page reachable once the owning account is signed in.
type Brand struct {
	ID               string      `json:"id"`
	BrandName        string      `json:"brand_name"`
	BrandURL         string      `json:"brand_url"`
	Marketplace      Marketplace `json:"marketplace"`
	AccountID        string      `json:"account_id"`
	Cookies          []byte      `json:"-"`
	CookiesUpdatedAt *time.Time  `json:"cookies_updated_at,omitempty"`

	// Account is populated when the brand is loaded together with its owner.
	Account *Account `json:"-"`
}

// AutomationSettings is the singleton record that tunes browser runs. A nil
// field was never stored and falls back to the built-in default.
type AutomationSettings struct {
	Headless  *bool   `json:"headless,omitempty"`
	TimeoutMs *int    `json:"timeout_ms,omitempty"`
	StartURL  *string `json:"start_url,omitempty"`
}
