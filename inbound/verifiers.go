package inbound

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const DefaultSignatureHeader = "X-Engage-Signature"

// SignatureVerifier checks an HMAC-SHA256 of "<scope id>.<body>" sent by the
// dialog host. Binding the scope id stops a signed body from being replayed
// against another attempt or session.
type SignatureVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func NewSignatureVerifier(secret string) SignatureVerifier {
	return SignatureVerifier{
		Header:   DefaultSignatureHeader,
		Prefix:   "sha256=",
		Secret:   secret,
		Encoding: "hex",
	}
}

func (v SignatureVerifier) Verify(_ context.Context, req Request) error {
	name := strings.TrimSpace(v.Header)
	if name == "" {
		name = DefaultSignatureHeader
	}
	header := strings.TrimSpace(headerValue(req.Headers, name))
	if header == "" {
		return fmt.Errorf("inbound: %s signature header is required", name)
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("inbound: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("inbound: signature value is required")
	}

	expected := SignCallback(secret, req.ScopeID, req.Body)
	var (
		decoded []byte
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return fmt.Errorf("inbound: decode signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("inbound: signature verification failed")
	}
	return nil
}

// SignCallback returns the raw MAC a SignatureVerifier expects.
func SignCallback(secret string, scopeID string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	_, _ = mac.Write([]byte(strings.TrimSpace(scopeID)))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// TokenVerifier compares a static shared token carried in a header.
type TokenVerifier struct {
	Header string
	Token  string
}

func (v TokenVerifier) Verify(_ context.Context, req Request) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("inbound: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("inbound: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("inbound: verification token mismatch")
	}
	return nil
}

func HeaderIdempotencyKeyExtractor(headers ...string) IdempotencyKeyExtractor {
	keys := append([]string(nil), headers...)
	return func(req Request) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(req.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("inbound: callback id is required for dedupe")
	}
}

// ChainIdempotencyKeyExtractors returns the first non-empty key.
func ChainIdempotencyKeyExtractors(extractors ...IdempotencyKeyExtractor) IdempotencyKeyExtractor {
	list := append([]IdempotencyKeyExtractor(nil), extractors...)
	return func(req Request) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			key, err := extractor(req)
			if err == nil && strings.TrimSpace(key) != "" {
				return strings.TrimSpace(key), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("inbound: callback id is required for dedupe")
	}
}
