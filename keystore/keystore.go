// Package keystore decrypts EIP-2335 BLS keystores, the local-signer path
// of §4.A: a directory of keystore JSON files plus a sibling directory of
// passphrases keyed by hex pubkey.
package keystore

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/scrypt"

	"github.com/interstate-labs/preconf-gateway/blssign"
)

// Sentinel errors named after the failure modes in spec §4.A.
var (
	ErrMissingPassword = errors.New("keystore: no passphrase file for pubkey")
	ErrDecryptFailed   = errors.New("keystore: decryption failed")
	ErrReadDir         = errors.New("keystore: failed to read directory")
)

// Config points at the two directories the local signer path needs.
type Config struct {
	KeystoresDir   string
	PassphrasesDir string
}

// DefaultConfig returns a zero-value Config; callers must set both
// directories explicitly.
func DefaultConfig() Config { return Config{} }

// Validate checks that both directories are configured.
func (c *Config) Validate() error {
	if c.KeystoresDir == "" || c.PassphrasesDir == "" {
		return fmt.Errorf("keystore: both KeystoresDir and PassphrasesDir are required")
	}
	return nil
}

// eip2335File is the on-disk JSON shape of a single keystore.
type eip2335File struct {
	Crypto struct {
		KDF struct {
			Function string `json:"function"`
			Params   struct {
				DKLen int    `json:"dklen"`
				N     int    `json:"n"`
				R     int    `json:"r"`
				P     int    `json:"p"`
				Salt  string `json:"salt"`
			} `json:"params"`
		} `json:"kdf"`
		Checksum struct {
			Function string `json:"function"`
			Message  string `json:"message"`
		} `json:"checksum"`
		Cipher struct {
			Function string `json:"function"`
			Params   struct {
				IV string `json:"iv"`
			} `json:"params"`
			Message string `json:"message"`
		} `json:"cipher"`
	} `json:"crypto"`
	Pubkey  string `json:"pubkey"`
	Version int    `json:"version"`
}

// LoadAll scans cfg.KeystoresDir for *.json keystore files, decrypts each
// against the matching passphrase in cfg.PassphrasesDir (a file named
// "<0x-hex-pubkey>.txt" containing the plaintext password), and returns the
// decrypted secret keys keyed by public key, ready to be handed to
// blssign.NewLocalSigner.
func LoadAll(cfg Config) (map[blssign.PublicKey]*blssign.SecretKey, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(cfg.KeystoresDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadDir, err)
	}

	out := make(map[blssign.PublicKey]*blssign.SecretKey)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(cfg.KeystoresDir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrReadDir, path, err)
		}

		var ks eip2335File
		if err := json.Unmarshal(raw, &ks); err != nil {
			return nil, fmt.Errorf("keystore: parse %s: %w", path, err)
		}

		pubkeyHex := "0x" + strings.TrimPrefix(strings.ToLower(ks.Pubkey), "0x")
		password, err := readPassphrase(cfg.PassphrasesDir, pubkeyHex)
		if err != nil {
			return nil, err
		}

		secretBytes, err := decrypt(&ks, password)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecryptFailed, path, err)
		}

		sk, err := blssign.SecretKeyFromBytes(secretBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecryptFailed, path, err)
		}
		out[sk.PublicKey()] = sk
	}
	return out, nil
}

func readPassphrase(dir, pubkeyHex string) (string, error) {
	path := filepath.Join(dir, pubkeyHex+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingPassword, pubkeyHex)
		}
		return "", fmt.Errorf("%w: %v", ErrReadDir, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// decrypt implements the EIP-2335 decryption procedure: derive a 32-byte
// key via scrypt, verify the checksum over its second half plus the
// ciphertext, then decrypt with AES-128-CTR using the first half as key.
func decrypt(ks *eip2335File, password string) ([]byte, error) {
	if ks.Crypto.KDF.Function != "scrypt" {
		return nil, fmt.Errorf("unsupported kdf function %q", ks.Crypto.KDF.Function)
	}
	if ks.Crypto.Cipher.Function != "aes-128-ctr" {
		return nil, fmt.Errorf("unsupported cipher function %q", ks.Crypto.Cipher.Function)
	}

	salt, err := hex.DecodeString(ks.Crypto.KDF.Params.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}
	dklen := ks.Crypto.KDF.Params.DKLen
	if dklen == 0 {
		dklen = 32
	}
	dk, err := scrypt.Key([]byte(password), salt, ks.Crypto.KDF.Params.N, ks.Crypto.KDF.Params.R, ks.Crypto.KDF.Params.P, dklen)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}

	cipherMessage, err := hex.DecodeString(ks.Crypto.Cipher.Message)
	if err != nil {
		return nil, fmt.Errorf("invalid cipher message: %w", err)
	}
	wantChecksum, err := hex.DecodeString(ks.Crypto.Checksum.Message)
	if err != nil {
		return nil, fmt.Errorf("invalid checksum: %w", err)
	}

	h := sha256.New()
	h.Write(dk[16:32])
	h.Write(cipherMessage)
	gotChecksum := h.Sum(nil)
	if !bytes.Equal(gotChecksum, wantChecksum) {
		return nil, fmt.Errorf("checksum mismatch: wrong passphrase or corrupted keystore")
	}

	iv, err := hex.DecodeString(ks.Crypto.Cipher.Params.IV)
	if err != nil {
		return nil, fmt.Errorf("invalid iv: %w", err)
	}
	block, err := aes.NewCipher(dk[0:16])
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	secret := make([]byte, len(cipherMessage))
	cipher.NewCTR(block, iv).XORKeyStream(secret, cipherMessage)
	return secret, nil
}
