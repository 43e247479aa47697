package validation

// CreateCheckoutRequest is the payload for POST /checkout
type CreateCheckoutRequest struct {
	SearchURL   string `json:"search_url" validate:"required,url,max=8192"` // search results page to scrape
	Email       string `json:"email" validate:"required,email,max=254"`     // where results are delivered
	Leads       int    `json:"leads" validate:"required,gt=0"`              // number of records requested
	CleanOutput bool   `json:"clean_output"`                                // drop empty fields from results
}

// Rules are the deployment limits a checkout request must satisfy.
type Rules struct {
	MinLeads       int
	MaxLeads       int
	AllowedHosts   []string // "*" allows any host
	MinChargeCents int64
	MaxChargeCents int64
	Price          func(leads int) int64
}
