// Package redact provides the PII redaction collaborator used by the
// ingestion pipeline. Values are replaced with stable tokens derived from
// a salted hash, and the original values are retained in-memory so a
// caller with access to the redactor can restore them locally. Tokens
// never leave the node in reversible form.
package redact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/settlerhq/settler-edge/pkg/types"
)

// TokenRedactor replaces PII values with [REDACTED_<TYPE>_<hash>] tokens.
// With an empty salt, tokenization is deterministic: the same value and
// PII type always produce the same token, so redacted data stays joinable.
type TokenRedactor struct {
	mu     sync.RWMutex
	salt   string
	tokens map[string]string // token -> original value
}

// NewTokenRedactor creates a redactor. A non-empty salt makes tokens
// unlinkable across nodes while staying deterministic within one.
func NewTokenRedactor(salt string) *TokenRedactor {
	return &TokenRedactor{
		salt:   salt,
		tokens: make(map[string]string),
	}
}

// Redact returns the token for a PII value and records the reverse mapping.
func (r *TokenRedactor) Redact(_ context.Context, value string, pii types.PIIType) (string, error) {
	sum := sha256.Sum256([]byte(r.salt + string(pii) + ":" + value))
	hash := hex.EncodeToString(sum[:])[:16]
	token := fmt.Sprintf("[REDACTED_%s_%s]", strings.ToUpper(string(pii)), hash)

	r.mu.Lock()
	r.tokens[token] = value
	r.mu.Unlock()

	return token, nil
}

// Restore returns the original value for a token; ok is false for tokens
// this redactor never issued.
func (r *TokenRedactor) Restore(token string) (value string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok = r.tokens[token]
	return value, ok
}

// RestoreText replaces every known token occurring in text with its
// original value. Unknown tokens are left untouched.
func (r *TokenRedactor) RestoreText(text string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for token, original := range r.tokens {
		text = strings.ReplaceAll(text, token, original)
	}
	return text
}

// Clear drops all retained token mappings.
func (r *TokenRedactor) Clear() {
	r.mu.Lock()
	r.tokens = make(map[string]string)
	r.mu.Unlock()
}
