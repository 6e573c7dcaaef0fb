package pipeline

const (
	reasonExpired           = "event is expired"
	reasonRateLimited       = "rate-limited: slow down"
	reasonNotSupported      = "error: event not supported"
	reasonStrategyFailed    = "error: unable to process event"
	reasonNotAdmitted       = "blocked: pubkey not admitted"
	reasonInsufficientFunds = "blocked: insufficient balance"
)
