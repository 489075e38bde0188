package billing

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"strings"
)

// hmacFields is the order Paymob concatenates transaction fields in before
// signing. Redirect queries use the same keys, except that order.id is sent
// as "order".
var hmacFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// TransactionHMAC computes the hex SHA-512 HMAC of a transaction callback.
func TransactionHMAC(tx *PaymobTransaction, secret string) string {
	b := strconv.FormatBool
	i := func(v int64) string { return strconv.FormatInt(v, 10) }
	values := map[string]string{
		"amount_cents":           i(tx.AmountCents),
		"created_at":             tx.CreatedAt,
		"currency":               tx.Currency,
		"error_occured":          b(tx.ErrorOccured),
		"has_parent_transaction": b(tx.HasParentTransaction),
		"id":                     i(tx.ID),
		"integration_id":         i(tx.IntegrationID),
		"is_3d_secure":           b(tx.Is3DSecure),
		"is_auth":                b(tx.IsAuth),
		"is_capture":             b(tx.IsCapture),
		"is_refunded":            b(tx.IsRefunded),
		"is_standalone_payment":  b(tx.IsStandalonePayment),
		"is_voided":              b(tx.IsVoided),
		"order.id":               i(tx.Order.ID),
		"owner":                  i(tx.Owner),
		"pending":                b(tx.Pending),
		"source_data.pan":        tx.SourceData.Pan,
		"source_data.sub_type":   tx.SourceData.SubType,
		"source_data.type":       tx.SourceData.Type,
		"success":                b(tx.Success),
	}
	return signFields(values, secret)
}

// QueryHMAC computes the HMAC of a redirect query string.
func QueryHMAC(query map[string]string, secret string) string {
	values := make(map[string]string, len(hmacFields))
	for _, f := range hmacFields {
		key := f
		if f == "order.id" {
			key = "order"
		}
		values[f] = query[key]
	}
	return signFields(values, secret)
}

func signFields(values map[string]string, secret string) string {
	var sb strings.Builder
	for _, f := range hmacFields {
		sb.WriteString(values[f])
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHMAC(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(got))))
}

// VerifyTransaction checks the HMAC of a transaction callback.
func (p *PaymobProvider) VerifyTransaction(tx *PaymobTransaction, signature string) error {
	if signature == "" || !equalHMAC(TransactionHMAC(tx, p.cfg.HMACSecret), signature) {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// VerifyRedirect checks the HMAC of the customer redirect query.
func (p *PaymobProvider) VerifyRedirect(query map[string]string, signature string) error {
	if signature == "" || !equalHMAC(QueryHMAC(query, p.cfg.HMACSecret), signature) {
		return ErrInvalidWebhookSignature
	}
	return nil
}
