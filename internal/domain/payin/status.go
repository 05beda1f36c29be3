package payin

import "strings"

// MapProviderStatus converts a provider status string to a payin status.
// Unknown strings map to failed: only an explicit success may credit a wallet.
func MapProviderStatus(providerStatus string) Status {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "completed", "success", "sent":
		return StatusCompleted
	case "pending", "checking", "processing":
		return StatusProcessing
	case "rejected":
		return StatusRejected
	case "expired":
		return StatusExpired
	default:
		return StatusFailed
	}
}
