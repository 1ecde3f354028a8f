package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeServiceTimeout:     "Service request timeout",
	CodeServiceUnavailable: "Service temporarily unavailable",
	CodeRateLimitExceeded:  "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Chain and network
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",
	CodeGasEstimationFailed:      "Gas estimation failed",
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeOrderbookFetchFailed:     "Failed to fetch orderbook",
	CodePoolFetchFailed:          "Failed to fetch pool state",
	CodeContractCallFailed:       "Smart contract call failed",

	// Detection and validation
	CodeStaleQuote:            "Quote is stale",
	CodeStaleGeneration:       "Pool snapshot generation has moved on",
	CodeUnprofitable:          "Opportunity no longer profitable",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeInvalidTradeSize:      "Invalid trade size",
	CodeBrokenPath:            "Swap path is malformed",

	// Execution
	CodeNonceConflict:       "Sequence number conflict",
	CodeGasUnderpriced:      "Transaction gas price too low",
	CodeTransactionReverted: "Transaction reverted on chain",
	CodeInsufficientFunds:   "Insufficient funds for fees",
	CodeDeadlineExceeded:    "Opportunity deadline exceeded",
	CodeFundingUnavailable:  "No flash loan source can fund this amount",
	CodeSubmitFailed:        "Transaction submission failed",

	// Safety gate
	CodeCircuitOpen:      "Circuit breaker is open",
	CodeExposureExceeded: "Aggregate exposure ceiling exceeded",
	CodePolicyViolation:  "Action rejected by policy",
	CodeRiskRejected:     "Risk-adjusted profit below threshold",
}
