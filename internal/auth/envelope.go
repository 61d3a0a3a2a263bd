package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Codes is the raw pass-code and nonce-code pair of a verification token.
// It is handed to the requester once and never stored.
type Codes struct {
	PassCode  string `json:"passCode"`
	NonceCode string `json:"nonceCode"`
}

// Complete reports whether both codes are present
func (c Codes) Complete() bool {
	return c.PassCode != "" && c.NonceCode != ""
}

// EncodeCodes packs codes into the base64(JSON) envelope submitted on verification
func EncodeCodes(c Codes) string {
	// Codes holds only strings, Marshal cannot fail
	b, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeCodes unpacks an envelope produced by EncodeCodes
func DecodeCodes(encoded string) (Codes, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Codes{}, fmt.Errorf("decode envelope: %w", err)
	}
	var c Codes
	if err := json.Unmarshal(raw, &c); err != nil {
		return Codes{}, fmt.Errorf("decode envelope: %w", err)
	}
	return c, nil
}

// EncodeNonce returns the nonce part of a request response
func EncodeNonce(nonceCode string) string {
	return base64.StdEncoding.EncodeToString([]byte(nonceCode))
}

// DecodeNonce reverses EncodeNonce
func DecodeNonce(nonce string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	return string(raw), nil
}
