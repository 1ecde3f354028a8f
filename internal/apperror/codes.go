package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Chain and network error codes
const (
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"
	CodeGasEstimationFailed      Code = "GAS_ESTIMATION_FAILED"
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeOrderbookFetchFailed     Code = "ORDERBOOK_FETCH_FAILED"
	CodePoolFetchFailed          Code = "POOL_FETCH_FAILED"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"
)

// Detection and validation error codes
const (
	CodeStaleQuote            Code = "STALE_QUOTE"
	CodeStaleGeneration       Code = "STALE_GENERATION"
	CodeUnprofitable          Code = "UNPROFITABLE"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidTradeSize      Code = "INVALID_TRADE_SIZE"
	CodeBrokenPath            Code = "BROKEN_PATH"
)

// Execution error codes
const (
	CodeNonceConflict       Code = "NONCE_CONFLICT"
	CodeGasUnderpriced      Code = "GAS_UNDERPRICED"
	CodeTransactionReverted Code = "TRANSACTION_REVERTED"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeDeadlineExceeded    Code = "DEADLINE_EXCEEDED"
	CodeFundingUnavailable  Code = "FUNDING_UNAVAILABLE"
	CodeSubmitFailed        Code = "SUBMIT_FAILED"
)

// Safety gate error codes
const (
	CodeCircuitOpen      Code = "CIRCUIT_OPEN"
	CodeExposureExceeded Code = "EXPOSURE_EXCEEDED"
	CodePolicyViolation  Code = "POLICY_VIOLATION"
	CodeRiskRejected     Code = "RISK_REJECTED"
)

// Category groups codes by how recovery should treat them (see business/execution).
type Category string

const (
	// CategoryTransient covers network timeouts and resets; retried with backoff.
	CategoryTransient Category = "transient"
	// CategoryStale covers price/state drift; re-validated, never blindly retried.
	CategoryStale Category = "stale"
	// CategoryOrdering covers sequence-number conflicts; resynchronized once.
	CategoryOrdering Category = "ordering"
	// CategoryPolicy covers safety gate rejections; never retried.
	CategoryPolicy Category = "policy"
	// CategoryFatal covers unrecoverable failures; surfaced immediately.
	CategoryFatal Category = "fatal"
)

var categories = map[Code]Category{
	CodeServiceTimeout:           CategoryTransient,
	CodeServiceUnavailable:       CategoryTransient,
	CodeRateLimitExceeded:        CategoryTransient,
	CodeEthereumConnectionFailed: CategoryTransient,
	CodeEthereumSubscribeFailed:  CategoryTransient,
	CodeEthereumRPCError:         CategoryTransient,
	CodeWebSocketConnectionError: CategoryTransient,
	CodeWebSocketClosed:          CategoryTransient,
	CodeOrderbookFetchFailed:     CategoryTransient,
	CodePoolFetchFailed:          CategoryTransient,
	CodeGasUnderpriced:           CategoryTransient,
	CodeSubmitFailed:             CategoryTransient,

	CodeStaleQuote:      CategoryStale,
	CodeStaleGeneration: CategoryStale,
	CodeUnprofitable:    CategoryStale,

	CodeNonceConflict: CategoryOrdering,

	CodeCircuitOpen:      CategoryPolicy,
	CodeExposureExceeded: CategoryPolicy,
	CodePolicyViolation:  CategoryPolicy,
	CodeRiskRejected:     CategoryPolicy,

	CodeInsufficientFunds:   CategoryFatal,
	CodeInvalidInput:        CategoryFatal,
	CodeInvalidState:        CategoryFatal,
	CodeBrokenPath:          CategoryFatal,
	CodeInvalidTradeSize:    CategoryFatal,
	CodeTransactionReverted: CategoryFatal,
	CodeDeadlineExceeded:    CategoryFatal,
	CodeFundingUnavailable:  CategoryFatal,
	CodeGasEstimationFailed: CategoryFatal,
}

// CategoryOf returns the recovery category for a code, defaulting to fatal:
// an unclassified failure must never be retried with capital attached.
func CategoryOf(code Code) Category {
	if cat, ok := categories[code]; ok {
		return cat
	}
	return CategoryFatal
}
