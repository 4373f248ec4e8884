package auth

import "fmt"

// Reason は initData 検証の失敗理由。
type Reason string

// 失敗理由。いずれも再試行しても結果は変わらない。
const (
	ReasonMissingHash       Reason = "missing_hash"
	ReasonMissingAuthDate   Reason = "missing_auth_date"
	ReasonInvalidAuthDate   Reason = "invalid_auth_date"
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonStale             Reason = "stale"
	ReasonMissingUserID     Reason = "missing_user_id"
	ReasonMalformedUser     Reason = "malformed_user_object"
)

// Error は initData 検証の失敗を表す。
// 署名の正否と鮮度はそれぞれ独立に記録される。
type Error struct {
	Reason         Reason
	SignatureValid bool
	Stale          bool
	Fields         map[string]any
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("initdata verification failed: %s (signature_valid=%t, stale=%t)",
		e.Reason, e.SignatureValid, e.Stale)
}

func newError(reason Reason, signatureValid, stale bool, pairs []Pair) *Error {
	return &Error{
		Reason:         reason,
		SignatureValid: signatureValid,
		Stale:          stale,
		Fields:         DecodeFields(pairs),
	}
}
