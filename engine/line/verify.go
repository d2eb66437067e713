package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// Verifier validates webhook signatures against the channel secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(channelSecret string) (*Verifier, error) {
	if channelSecret == "" {
		return nil, errors.New("empty channel secret")
	}
	return &Verifier{secret: []byte(channelSecret)}, nil
}

// Verify checks the signature header against the raw body. The platform
// signs the exact bytes it sent, so callers must pass the body before
// any decoding.
func (v *Verifier) Verify(r *http.Request, body []byte) error {
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		return errors.New("missing signature header")
	}
	got, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sig))
	if err != nil {
		return errors.New("invalid signature encoding")
	}
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return errors.New("signature mismatch")
	}
	return nil
}

// Sign computes the signature for a body; used by tests and local
// tooling to forge valid requests.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
