package paymentwebhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// SignatureHeader carries the gateway's HMAC of the notification body.
const SignatureHeader = "x-nowpayments-sig"

var (
	ErrSignatureMissing = errors.New("ipn signature missing")
	ErrSignatureInvalid = errors.New("ipn signature invalid")
)

// VerifySignature checks the HMAC-SHA512 the gateway computes over the notification
// body re-serialized with its object keys sorted.
func VerifySignature(secret string, payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	expected, err := Sign(secret, payload)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign returns the hex HMAC-SHA512 of the canonical form of payload.
func Sign(secret string, payload []byte) (string, error) {
	if secret == "" {
		return "", errors.New("ipn secret is required")
	}
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// canonicalJSON re-encodes payload with sorted object keys and without HTML escaping.
// Numbers keep their original text.
func canonicalJSON(payload []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var body map[string]any
	if err := decoder.Decode(&body); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(body); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
