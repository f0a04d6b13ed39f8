package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	apperrors "github.com/conversion-tracker/internal/errors"
	"github.com/conversion-tracker/internal/logging"
)

// Request headers carrying the submitter identity and proof.
const (
	HeaderHotkey    = "X-Hotkey"
	HeaderSignature = "X-Signature"
	HeaderBlock     = "X-Block"
)

// SignatureMiddleware verifies that mutating requests are signed by an
// allowed submitter. The signature is a 65-byte secp256k1 recoverable
// signature over the Keccak256 hash of the request body; the recovered
// address must match X-Hotkey and appear in the allow list.
//
// An empty allow list disables verification (local development).
func SignatureMiddleware(allowedHotkeys []string, logger *logging.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedHotkeys))
	for _, hk := range allowedHotkeys {
		allowed[strings.ToLower(hk)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			hotkey := strings.ToLower(r.Header.Get(HeaderHotkey))
			if _, ok := allowed[hotkey]; !ok {
				respondCategorized(w, apperrors.NewUnauthorizedError("unknown submitter"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Unable to read request body", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifySignature(hotkey, body, r.Header.Get(HeaderSignature)) {
				logger.WithField("hotkey", hotkey).Warn("signature verification failed")
				respondCategorized(w, apperrors.NewUnauthorizedError("invalid signature"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// verifySignature recovers the signer address from sigHex over
// Keccak256(body) and compares it with the claimed hotkey.
func verifySignature(hotkey string, body []byte, sigHex string) bool {
	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}

	// Accept the legacy 27/28 recovery id encoding
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(crypto.Keccak256(body), sig)
	if err != nil {
		return false
	}

	return strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), hotkey)
}
