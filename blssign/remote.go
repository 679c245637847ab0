package blssign

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/interstate-labs/preconf-gateway/chain"
	"github.com/interstate-labs/preconf-gateway/log"
)

// RemoteSignerConfig configures a Web3Signer/Dirk-style remote signer
// client. Only the two RPCs the gateway needs are modeled; everything else
// about the remote signer's transport is out of scope (§1).
type RemoteSignerConfig struct {
	BaseURL string
	// CACertPEM, optional: validates the remote signer's server certificate.
	CACertPEM []byte
	// ClientCertPEM + ClientKeyPEM, optional: mutual-TLS client identity.
	ClientCertPEM []byte
	ClientKeyPEM  []byte
	Timeout       time.Duration
}

// DefaultRemoteSignerConfig returns sensible defaults; BaseURL must still
// be set by the caller.
func DefaultRemoteSignerConfig() RemoteSignerConfig {
	return RemoteSignerConfig{Timeout: 5 * time.Second}
}

// Validate checks the config is usable.
func (c *RemoteSignerConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("blssign: remote signer base URL is required")
	}
	if (c.ClientCertPEM == nil) != (c.ClientKeyPEM == nil) {
		return fmt.Errorf("blssign: mTLS client cert and key must both be set or both be empty")
	}
	return nil
}

// RemoteSigner implements Signer by delegating to a Web3Signer-style HTTP
// service over HTTPS with optional mutual TLS.
type RemoteSigner struct {
	cfg    RemoteSignerConfig
	client *http.Client
	log    *log.Logger
}

// NewRemoteSigner builds a RemoteSigner, configuring TLS per cfg.
func NewRemoteSigner(cfg RemoteSignerConfig) (*RemoteSigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{}
	if len(cfg.CACertPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.CACertPEM) {
			return nil, fmt.Errorf("blssign: failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	if len(cfg.ClientCertPEM) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCertPEM, cfg.ClientKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("blssign: parse client identity: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &RemoteSigner{
		cfg: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		log: log.Default().Module("blssign.remote"),
	}, nil
}

type getPubkeysResponse struct {
	Pubkeys []string `json:"pubkeys"`
}

// ListPubkeys implements Signer via GET /signer/v1/get_pubkeys.
func (r *RemoteSigner) ListPubkeys(ctx context.Context) ([]PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/signer/v1/get_pubkeys", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blssign: get_pubkeys request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blssign: get_pubkeys returned status %d", resp.StatusCode)
	}
	var parsed getPubkeysResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("blssign: decode get_pubkeys response: %w", err)
	}
	out := make([]PublicKey, 0, len(parsed.Pubkeys))
	for _, hexPk := range parsed.Pubkeys {
		pk, err := decodeHexPubkey(hexPk)
		if err != nil {
			r.log.Warn("skipping malformed remote pubkey", "raw", hexPk, "err", err)
			continue
		}
		out = append(out, pk)
	}
	return out, nil
}

type requestSignatureBody struct {
	Type       string `json:"type"`
	Pubkey     string `json:"pubkey"`
	ObjectRoot string `json:"object_root"`
}

type requestSignatureResponse struct {
	Signature string `json:"signature"`
}

// SignRoot implements Signer via POST /signer/v1/request_signature. The
// server is expected to apply the Commit-Boost domain itself; the client
// only supplies the message digest as object_root, per §4.A. The domain
// parameter is accepted to satisfy the Signer interface but not
// transmitted: the remote signer derives it from pubkey's configured chain.
func (r *RemoteSigner) SignRoot(ctx context.Context, pubkey PublicKey, objectRoot [32]byte, _ chain.Domain) (Signature, error) {
	body := requestSignatureBody{
		Type:       "consensus",
		Pubkey:     "0x" + hex.EncodeToString(pubkey[:]),
		ObjectRoot: "0x" + hex.EncodeToString(objectRoot[:]),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Signature{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/signer/v1/request_signature", bytes.NewReader(payload))
	if err != nil {
		return Signature{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Signature{}, fmt.Errorf("blssign: request_signature: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Signature{}, fmt.Errorf("blssign: request_signature returned status %d", resp.StatusCode)
	}
	var parsed requestSignatureResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Signature{}, fmt.Errorf("blssign: decode request_signature response: %w", err)
	}
	return decodeHexSignature(parsed.Signature)
}

func decodeHexPubkey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return PublicKey{}, err
	}
	if len(b) != 48 {
		return PublicKey{}, fmt.Errorf("blssign: pubkey must be 48 bytes, got %d", len(b))
	}
	var out PublicKey
	copy(out[:], b)
	return out, nil
}

func decodeHexSignature(s string) (Signature, error) {
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return Signature{}, err
	}
	if len(b) != 96 {
		return Signature{}, fmt.Errorf("blssign: signature must be 96 bytes, got %d", len(b))
	}
	var out Signature
	copy(out[:], b)
	return out, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
