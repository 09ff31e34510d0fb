package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Scrypt parameters for new keystores. Tests lower them through
// SetKeystoreScrypt.
var (
	keystoreScryptN = keystore.StandardScryptN
	keystoreScryptP = keystore.StandardScryptP
)

// SetKeystoreScrypt overrides the scrypt cost used by SaveToKeystore.
func SetKeystoreScrypt(n, p int) {
	keystoreScryptN, keystoreScryptP = n, p
}

// SaveToKeystore encrypts key into an Ethereum v3 keystore file. The file is
// written next to its final path and renamed into place with mode 0600.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil || key.PrivateKey == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	encoded, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key.PrivateKey,
	}, passphrase, keystoreScryptN, keystoreScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt keystore: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// KeystoreExists reports whether a keystore file is present at path.
func KeystoreExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// KeystoreAddress reads the plaintext address field of a v3 keystore without
// decrypting it.
func KeystoreAddress(path string) ([20]byte, error) {
	var out [20]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return out, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(header.Address), "0x"))
	if err != nil || len(decoded) != len(out) {
		return out, errors.New("crypto: keystore has no valid address")
	}
	copy(out[:], decoded)
	return out, nil
}

// LoadFromKeystore decrypts a v3 keystore file with passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	if decrypted.PrivateKey == nil {
		return nil, errors.New("crypto: keystore did not contain a private key")
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
