package dto

// WebhookAcceptedResponse is the only success shape the ingestion path
// ever returns. Processing outcomes are observable through the ledger,
// never synchronously.
type WebhookAcceptedResponse struct {
	Status        string `json:"status"`
	DeliveryLogID int64  `json:"delivery_log_id"`
	Duplicate     bool   `json:"duplicate"`
}
