package merchant

import "time"

// Merchant is the organization an earn token is scoped to. Looked up by the
// slug derived from the request host; owned by an administrative process
// outside this service.
type Merchant struct {
	ID        string
	Slug      string
	Name      string
	TenantID  string
	CreatedAt time.Time
}

// Tenant owns a merchant's customer-facing app; only its slug matters here,
// to compute the base address where claims are served.
type Tenant struct {
	ID   string
	Slug string
}
