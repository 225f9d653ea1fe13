package wallet

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// keyFile is the on-disk form of a wallet key.
type keyFile struct {
	Scheme     string `toml:"scheme"`
	Account    string `toml:"account"`
	PrivateKey string `toml:"private_key"`
}

// GenerateKeyFile creates a new key for scheme and writes it to path with
// owner-only permissions. It refuses to overwrite an existing file.
func GenerateKeyFile(path, scheme string) (*Key, error) {
	k, err := GenerateKey(scheme, nil)
	if err != nil {
		return nil, err
	}
	if err := SaveKeyFile(path, k); err != nil {
		return nil, err
	}
	return k, nil
}

// SaveKeyFile writes k to path. The file must not exist.
func SaveKeyFile(path string, k *Key) error {
	priv, err := k.MarshalPrivate()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	defer f.Close()
	kf := keyFile{
		Scheme:     k.Scheme(),
		Account:    k.Account(),
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
	}
	if err := toml.NewEncoder(f).Encode(kf); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// LoadKeyFile reads a key written by SaveKeyFile.
func LoadKeyFile(path string) (*Key, error) {
	var kf keyFile
	if _, err := toml.DecodeFile(path, &kf); err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	priv, err := base64.StdEncoding.DecodeString(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("key file %s: private_key: %w", path, err)
	}
	k, err := ParseKey(kf.Scheme, priv)
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	if kf.Account != "" && kf.Account != k.Account() {
		return nil, fmt.Errorf("key file %s: account %s does not match key (%s)", path, kf.Account, k.Account())
	}
	return k, nil
}

// Open returns a session for the key file at path, or an anonymous session
// when path is empty.
func Open(path string) (*Session, error) {
	if path == "" {
		return Anonymous(), nil
	}
	k, err := LoadKeyFile(path)
	if err != nil {
		return nil, err
	}
	return NewSession(k), nil
}
