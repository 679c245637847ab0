package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/scrypt"
)

// writeFixtureKeystore builds a real EIP-2335 keystore JSON file (scrypt +
// aes-128-ctr, matching the production decrypt path exactly) so the test
// exercises the actual cryptographic round trip rather than a stub.
func writeFixtureKeystore(t *testing.T, dir, password string, secret []byte) (path string) {
	t.Helper()

	salt := make([]byte, 32)
	for i := range salt {
		salt[i] = byte(i)
	}
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i + 1)
	}

	// Use small scrypt N for fast tests; production keystores use a much
	// higher work factor.
	n, r, p, dklen := 4, 8, 1, 32
	dk, err := scrypt.Key([]byte(password), salt, n, r, p, dklen)
	if err != nil {
		t.Fatalf("scrypt: %v", err)
	}

	block, err := aes.NewCipher(dk[0:16])
	if err != nil {
		t.Fatalf("aes: %v", err)
	}
	ciphertext := make([]byte, len(secret))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, secret)

	h := sha256.New()
	h.Write(dk[16:32])
	h.Write(ciphertext)
	checksum := h.Sum(nil)

	ks := eip2335File{}
	ks.Crypto.KDF.Function = "scrypt"
	ks.Crypto.KDF.Params.DKLen = dklen
	ks.Crypto.KDF.Params.N = n
	ks.Crypto.KDF.Params.R = r
	ks.Crypto.KDF.Params.P = p
	ks.Crypto.KDF.Params.Salt = hex.EncodeToString(salt)
	ks.Crypto.Checksum.Function = "sha256"
	ks.Crypto.Checksum.Message = hex.EncodeToString(checksum)
	ks.Crypto.Cipher.Function = "aes-128-ctr"
	ks.Crypto.Cipher.Params.IV = hex.EncodeToString(iv)
	ks.Crypto.Cipher.Message = hex.EncodeToString(ciphertext)
	ks.Pubkey = "ab"
	ks.Version = 4

	data, err := json.Marshal(ks)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path = filepath.Join(dir, "validator.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadAllDecryptsFixture(t *testing.T) {
	keystoresDir := t.TempDir()
	passphrasesDir := t.TempDir()

	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(0x10 + i)
	}
	writeFixtureKeystore(t, keystoresDir, "correct horse battery staple", secret)

	if err := os.WriteFile(filepath.Join(passphrasesDir, "0xab.txt"), []byte("correct horse battery staple\n"), 0o600); err != nil {
		t.Fatalf("write passphrase: %v", err)
	}

	keys, err := LoadAll(Config{KeystoresDir: keystoresDir, PassphrasesDir: passphrasesDir})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 decrypted key, got %d", len(keys))
	}
}

func TestLoadAllMissingPassword(t *testing.T) {
	keystoresDir := t.TempDir()
	passphrasesDir := t.TempDir()

	secret := make([]byte, 32)
	writeFixtureKeystore(t, keystoresDir, "s3cret", secret)

	_, err := LoadAll(Config{KeystoresDir: keystoresDir, PassphrasesDir: passphrasesDir})
	if err == nil {
		t.Fatal("expected error for missing passphrase file")
	}
}

func TestLoadAllUnreadableDir(t *testing.T) {
	_, err := LoadAll(Config{KeystoresDir: "/nonexistent/path/does/not/exist", PassphrasesDir: "/also/missing"})
	if err == nil {
		t.Fatal("expected error for unreadable keystore directory")
	}
}
