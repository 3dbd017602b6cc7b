package allocation

import (
	"fmt"
	"strings"
	"time"

	"stockflow/internal/domain/batch"
)

// explain renders the facts behind a selection: sufficiency, expiry pressure,
// purchase age, and any earlier-expiring batch that was passed over.
func explain(sel Selection, candidates []batch.Batch, now time.Time, criticalDays int) string {
	if sel.Batch == nil {
		return fmt.Sprintf("No batch of product %s has remaining stock.", sel.ProductCode)
	}
	chosen := sel.Batch

	var parts []string
	parts = append(parts, fmt.Sprintf("Selected %s (%d remaining, purchased %s, %s) using %s.",
		chosen.Label(), chosen.RemainingQuantity, chosen.PurchaseDate.Format(time.DateOnly),
		expiryPhrase(chosen), sel.Strategy))

	if sel.Partial() {
		parts = append(parts, fmt.Sprintf("No batch holds the %d units requested; partial fulfillment of %d units.",
			sel.Requested, sel.Fulfillable))
	} else {
		parts = append(parts, fmt.Sprintf("It covers the full request of %d units.", sel.Requested))
	}

	parts = append(parts, expiryCriticality(chosen, now, criticalDays))
	parts = append(parts, purchaseAge(chosen, candidates))

	if note := passedOver(sel, candidates); note != "" {
		parts = append(parts, note)
	}

	return strings.Join(parts, " ")
}

func expiryPhrase(b *batch.Batch) string {
	if b.ExpiryDate == nil {
		return "no expiry"
	}
	return "expires " + b.ExpiryDate.Format(time.DateOnly)
}

func expiryCriticality(b *batch.Batch, now time.Time, criticalDays int) string {
	switch {
	case b.ExpiryDate == nil:
		return "Not expiry-critical: the batch has no expiry date."
	case b.IsExpired(now):
		return fmt.Sprintf("Expiry-critical: the batch already expired on %s.", b.ExpiryDate.Format(time.DateOnly))
	}
	days := b.DaysUntilExpiry(now)
	if days <= criticalDays {
		return fmt.Sprintf("Expiry-critical: expires in %d days (threshold %d).", days, criticalDays)
	}
	return fmt.Sprintf("Not expiry-critical: expires in %d days (threshold %d).", days, criticalDays)
}

func purchaseAge(chosen *batch.Batch, candidates []batch.Batch) string {
	var oldest *batch.Batch
	for i := range candidates {
		c := &candidates[i]
		if oldest == nil || c.PurchaseDate.Before(oldest.PurchaseDate) {
			oldest = c
		}
	}
	if oldest == nil || oldest.ID == chosen.ID || !oldest.PurchaseDate.Before(chosen.PurchaseDate) {
		return "It is the chronologically oldest available batch."
	}
	return fmt.Sprintf("It is not the oldest available batch: %s was purchased earlier on %s.",
		oldest.Label(), oldest.PurchaseDate.Format(time.DateOnly))
}

// passedOver explains the earliest-expiring candidate that expires before the
// chosen batch but was not picked.
func passedOver(sel Selection, candidates []batch.Batch) string {
	chosen := sel.Batch
	var earlier *batch.Batch
	for i := range candidates {
		c := &candidates[i]
		if c.ID == chosen.ID || !c.ExpiresBefore(chosen) {
			continue
		}
		if earlier == nil || c.ExpiresBefore(earlier) {
			earlier = c
		}
	}
	if earlier == nil {
		return ""
	}

	age := "An older"
	if earlier.PurchaseDate.After(chosen.PurchaseDate) {
		age = "A newer"
	}

	reason := fmt.Sprintf("it ranks lower under %s", sel.Strategy)
	if earlier.RemainingQuantity < sel.Requested && chosen.RemainingQuantity >= sel.Requested {
		reason = fmt.Sprintf("it holds only %d units, fewer than the %d requested", earlier.RemainingQuantity, sel.Requested)
	}

	return fmt.Sprintf("%s batch, %s, expires earlier on %s but was not chosen: %s.",
		age, earlier.Label(), earlier.ExpiryDate.Format(time.DateOnly), reason)
}
