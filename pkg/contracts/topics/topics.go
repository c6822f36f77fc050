package topics

const (
	// Chain / carteira
	TransferConfirmed  = "transfer_confirmed"
	PayoutInstructions = "payout_instructions"
	PayoutResults      = "payout_results"

	// Catálogo
	MarketStatus = "market_status"

	// DLQs
	PayoutInstructionsDLQ = "payout_instructions_dlq"
)
