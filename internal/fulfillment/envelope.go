package fulfillment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/imrishuroy/leadflow/internal/metacodec"
	"github.com/imrishuroy/leadflow/internal/orders"
)

// Metadata keys attached to the checkout session and its PaymentIntent.
const (
	MetaURL   = "search_url"
	MetaLeads = "leads"
	MetaEmail = "email"
	MetaClean = "clean_output"
)

// EncodeMetadata builds the envelope that lets fulfillment rebuild an order
// when the staging store has lost it.
func EncodeMetadata(order orders.PendingOrder, maxFieldLength int) map[string]string {
	md := map[string]string{
		MetaLeads: strconv.Itoa(order.RequestedVolume),
		MetaEmail: order.ContactAddress,
		MetaClean: strconv.FormatBool(order.OutputCleaningRequested),
	}
	metacodec.Put(md, MetaURL, order.DestinationURL, maxFieldLength)
	return md
}

// OrderFromMetadata rebuilds an order from the envelope. contactFallback is
// used when the envelope carries no address (e.g. the address the payment
// page collected). The returned flag is true when the URL had to fall back to
// its truncated copy.
func OrderFromMetadata(sessionID string, md map[string]string, contactFallback string) (orders.PendingOrder, bool, error) {
	order := orders.PendingOrder{SessionID: sessionID}

	url, err := metacodec.Get(md, MetaURL)
	truncated := err != nil
	if url == "" {
		return order, truncated, fmt.Errorf("%w: no destination url in metadata", ErrRecovery)
	}
	order.DestinationURL = url

	leads, err := strconv.Atoi(strings.TrimSpace(md[MetaLeads]))
	if err != nil || leads <= 0 {
		return order, truncated, fmt.Errorf("%w: lead count %q", ErrRecovery, md[MetaLeads])
	}
	order.RequestedVolume = leads

	contact := strings.TrimSpace(md[MetaEmail])
	if contact == "" {
		contact = strings.TrimSpace(contactFallback)
	}
	if !strings.Contains(contact, "@") {
		return order, truncated, fmt.Errorf("%w: no contact address", ErrRecovery)
	}
	order.ContactAddress = contact

	order.OutputCleaningRequested, _ = strconv.ParseBool(md[MetaClean])
	return order, truncated, nil
}
