package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// signBody signs the request body the way submitters do
func signBody(t *testing.T, keyHex string, body []byte) (hotkey, signature string) {
	t.Helper()

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		t.Fatalf("bad test key: %v", err)
	}

	sig, err := crypto.Sign(crypto.Keccak256(body), key)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

const testSubmitterKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func protectedHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestSignatureMiddleware_ValidSignature(t *testing.T) {
	body := []byte(`{"visits":[]}`)
	hotkey, signature := signBody(t, testSubmitterKey, body)

	var called bool
	mw := SignatureMiddleware([]string{hotkey}, testServerLogger())
	handler := mw(protectedHandler(&called))

	req := httptest.NewRequest("POST", "/api/v1/visits", bytes.NewReader(body))
	req.Header.Set(HeaderHotkey, hotkey)
	req.Header.Set(HeaderSignature, signature)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !called {
		t.Error("inner handler never ran")
	}
}

func TestSignatureMiddleware_WrongBody(t *testing.T) {
	_, signature := signBody(t, testSubmitterKey, []byte(`{"visits":[]}`))
	hotkey, _ := signBody(t, testSubmitterKey, nil)

	var called bool
	mw := SignatureMiddleware([]string{hotkey}, testServerLogger())
	handler := mw(protectedHandler(&called))

	// Signature from a different payload must not verify
	req := httptest.NewRequest("POST", "/api/v1/visits", bytes.NewReader([]byte(`{"visits":[{"id":"forged"}]}`)))
	req.Header.Set(HeaderHotkey, hotkey)
	req.Header.Set(HeaderSignature, signature)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if called {
		t.Error("inner handler ran on a forged body")
	}
}

func TestSignatureMiddleware_UnknownSubmitter(t *testing.T) {
	body := []byte(`{}`)
	hotkey, signature := signBody(t, testSubmitterKey, body)

	var called bool
	mw := SignatureMiddleware([]string{"0x0000000000000000000000000000000000000001"}, testServerLogger())
	handler := mw(protectedHandler(&called))

	req := httptest.NewRequest("POST", "/api/v1/visits", bytes.NewReader(body))
	req.Header.Set(HeaderHotkey, hotkey)
	req.Header.Set(HeaderSignature, signature)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSignatureMiddleware_MissingSignature(t *testing.T) {
	body := []byte(`{}`)
	hotkey, _ := signBody(t, testSubmitterKey, body)

	var called bool
	mw := SignatureMiddleware([]string{hotkey}, testServerLogger())
	handler := mw(protectedHandler(&called))

	req := httptest.NewRequest("POST", "/api/v1/visits", bytes.NewReader(body))
	req.Header.Set(HeaderHotkey, hotkey)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSignatureMiddleware_DisabledWithEmptyAllowList(t *testing.T) {
	var called bool
	mw := SignatureMiddleware(nil, testServerLogger())
	handler := mw(protectedHandler(&called))

	req := httptest.NewRequest("POST", "/api/v1/visits", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
	if !called {
		t.Error("inner handler never ran")
	}
}

func TestSignatureMiddleware_BodyStillReadable(t *testing.T) {
	body := []byte(`{"payload":"survives"}`)
	hotkey, signature := signBody(t, testSubmitterKey, body)

	var got []byte
	mw := SignatureMiddleware([]string{hotkey}, testServerLogger())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		got = buf.Bytes()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/v1/visits", bytes.NewReader(body))
	req.Header.Set(HeaderHotkey, hotkey)
	req.Header.Set(HeaderSignature, signature)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !bytes.Equal(got, body) {
		t.Errorf("handler read %q, want the original body", got)
	}
}

func TestVerifySignature_LegacyRecoveryID(t *testing.T) {
	body := []byte(`{}`)
	hotkey, signature := signBody(t, testSubmitterKey, body)

	// Re-encode with the 27/28 recovery id convention
	sig, err := hexutil.Decode(signature)
	if err != nil {
		t.Fatal(err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	if !verifySignature(hotkey, body, hexutil.Encode(sig)) {
		t.Error("legacy-encoded signature rejected")
	}
}
