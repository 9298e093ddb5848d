package signer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
)

const (
	signDomain     = "rubyams-tx"
	defaultTimeout = 30 * time.Second
)

// RemoteConfig configures a RemoteSigner.
type RemoteConfig struct {
	BaseURL   string
	ServiceID string
	Timeout   time.Duration
	Network   ledger.Network
}

// RemoteSigner asks a signing service to witness transactions. The key
// never leaves the service.
type RemoteSigner struct {
	baseURL    string
	serviceID  string
	httpClient *http.Client
	publicKey  ed25519.PublicKey
	address    string
}

type signRequest struct {
	Domain string `json:"domain"`
	Data   string `json:"data"`
}

// NewRemoteSigner fetches the service's active public key and derives the
// wallet address from it.
func NewRemoteSigner(ctx context.Context, cfg RemoteConfig) (*RemoteSigner, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	s := &RemoteSigner{
		baseURL:    cfg.BaseURL,
		serviceID:  cfg.ServiceID,
		httpClient: &http.Client{Timeout: timeout},
	}

	body, err := s.do(ctx, http.MethodGet, "/attestation", nil)
	if err != nil {
		return nil, err
	}
	pub, err := hex.DecodeString(gjson.GetBytes(body, "pubkey_hex").String())
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: service returned an invalid public key", ErrInvalidKey)
	}
	s.publicKey = pub
	if s.address, err = ledger.KeyAddress(ledger.Hash224(pub), cfg.Network); err != nil {
		return nil, err
	}
	return s, nil
}

// Address returns the wallet address of the service key.
func (s *RemoteSigner) Address() string { return s.address }

// Sign sends the body hash to the service and verifies the signature.
func (s *RemoteSigner) Sign(ctx context.Context, tx ledger.UnsignedTx) (ledger.SignedTx, error) {
	msg, err := ledger.SigningHash(tx)
	if err != nil {
		return ledger.SignedTx{}, err
	}
	payload, err := json.Marshal(signRequest{Domain: signDomain, Data: hex.EncodeToString(msg)})
	if err != nil {
		return ledger.SignedTx{}, fmt.Errorf("marshal request: %w", err)
	}

	body, err := s.do(ctx, http.MethodPost, "/sign", payload)
	if err != nil {
		return ledger.SignedTx{}, err
	}
	sig, err := hex.DecodeString(gjson.GetBytes(body, "signature").String())
	if err != nil || !ed25519.Verify(s.publicKey, msg, sig) {
		return ledger.SignedTx{}, fmt.Errorf("signer: service returned an invalid signature for %s", tx.Hash)
	}
	return assemble(tx, ledger.Witness{PublicKey: s.publicKey, Signature: sig})
}

func (s *RemoteSigner) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Service-ID", s.serviceID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed: %s - %s", resp.Status, string(body))
	}
	return body, nil
}
