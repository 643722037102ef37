package schemas

import "time"

// RunScope says whether a run was requested for one brand or a whole account.
type RunScope string

const (
	ScopeBrand   RunScope = "brand"
	ScopeAccount RunScope = "account"
)

// Credentials are the decrypted values typed into the login form.
// They live only in memory for the duration of a run.
type Credentials struct {
	Username string `json:"-"`
	Password string `json:"-"`
	TwoFAKey string `json:"-"`
}

// BrandTarget is a brand name paired with the URL to open for it.
type BrandTarget struct {
	BrandName string `json:"brand_name"`
	BrandURL  string `json:"brand_url"`
}

// Automation holds the resolved browser settings for a run.
type Automation struct {
	Headless  bool   `json:"headless"`
	TimeoutMs int    `json:"timeout_ms"`
	StartURL  string `json:"start_url"`
}

// Timeout returns TimeoutMs as a duration.
func (a Automation) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// RunConfig is the immutable input of one run. It is built once by the
// resolver and passed by value afterwards.
type RunConfig struct {
	Scope       RunScope    `json:"scope"`
	AccountID   string      `json:"account_id"`
	AccountName string      `json:"account_name"`
	Credentials Credentials `json:"-"`

	// Brand is set for brand scoped runs.
	Brand *BrandTarget `json:"brand,omitempty"`
	// Brands is set for account scoped runs, ordered by brand name.
	Brands []BrandTarget `json:"brands,omitempty"`

	Automation Automation `json:"automation"`
}

// Overrides carries process level automation settings. A nil field means
// the value was not supplied.
type Overrides struct {
	Headless  *bool
	TimeoutMs *int
	StartURL  *string
}

// RunRequest names what a run should operate on.
type RunRequest struct {
	AccountRef string
	BrandRef   string
	Overrides  Overrides
}
