package validation

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a validator with the checkout struct-level rules registered.
func New(rules Rules) *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(checkoutStructValidation(rules), CreateCheckoutRequest{})
	return v
}

// checkoutStructValidation enforces the host allow-list, lead bounds and the
// resulting charge bounds.
func checkoutStructValidation(rules Rules) validatorv10.StructLevelFunc {
	return func(sl validatorv10.StructLevel) {
		req := sl.Current().Interface().(CreateCheckoutRequest)

		if u, err := url.Parse(req.SearchURL); err == nil && u.Host != "" {
			if u.Scheme != "https" && u.Scheme != "http" {
				sl.ReportError(req.SearchURL, "search_url", "SearchURL", "scheme", u.Scheme)
			} else if !hostAllowed(u.Hostname(), rules.AllowedHosts) {
				sl.ReportError(req.SearchURL, "search_url", "SearchURL", "allowed_host", u.Hostname())
			}
		}

		if req.Leads < rules.MinLeads {
			sl.ReportError(req.Leads, "leads", "Leads", "min_leads", fmt.Sprint(rules.MinLeads))
		}
		if rules.MaxLeads > 0 && req.Leads > rules.MaxLeads {
			sl.ReportError(req.Leads, "leads", "Leads", "max_leads", fmt.Sprint(rules.MaxLeads))
		}

		if rules.Price != nil && req.Leads > 0 {
			cents := rules.Price(req.Leads)
			if cents < rules.MinChargeCents {
				sl.ReportError(req.Leads, "leads", "Leads", "min_charge", fmt.Sprint(rules.MinChargeCents))
			}
			if rules.MaxChargeCents > 0 && cents > rules.MaxChargeCents {
				sl.ReportError(req.Leads, "leads", "Leads", "max_charge", fmt.Sprint(rules.MaxChargeCents))
			}
		}
	}
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, a := range allowed {
		a = strings.ToLower(a)
		if a == "*" || a == host {
			return true
		}
	}
	return false
}
