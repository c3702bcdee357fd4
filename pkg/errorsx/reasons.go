package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonOracleDecide    ReasonCode = "oracle_decide"
	ReasonOracleEmergency ReasonCode = "oracle_emergency"
	ReasonOracleSummarize ReasonCode = "oracle_summarize"
	ReasonOracleRetry     ReasonCode = "oracle_retry"

	ReasonStorageRead  ReasonCode = "storage_read"
	ReasonStorageWrite ReasonCode = "storage_write"

	ReasonTelephonySpeak   ReasonCode = "telephony_speak"
	ReasonTelephonyEndCall ReasonCode = "telephony_end_call"
	ReasonTelephonyDial    ReasonCode = "telephony_dial"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonTransportMalformedEvent   ReasonCode = "webhook_malformed_event"
	ReasonTransportSend             ReasonCode = "transport_send"
)
