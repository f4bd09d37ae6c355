package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Credentials live in one 0600 JSON file under the user config dir, each value
// sealed with AES-GCM and bound to its name. This keeps them out of config
// files; it is not a keychain.

const (
	dirName  = "finsync"
	fileName = "secrets.json"
	version  = 1
)

// Well-known credential names. Only these can be stored.
const (
	PluggyClientSecret  = "pluggy.client_secret"
	PluggyWebhookSecret = "pluggy.webhook_secret"
	AIPrimaryKey        = "ai.primary.api_key"
	AIFallbackKey       = "ai.fallback.api_key"
)

var knownNames = map[string]bool{
	PluggyClientSecret:  true,
	PluggyWebhookSecret: true,
	AIPrimaryKey:        true,
	AIFallbackKey:       true,
}

var (
	// ErrNotFound is returned when no secret is stored under a name.
	ErrNotFound = errors.New("secret not found")
	// ErrUnknownName is returned for names outside the known set.
	ErrUnknownName = errors.New("unknown secret name")
)

// Names lists the credentials the store accepts.
func Names() []string {
	return []string{PluggyClientSecret, PluggyWebhookSecret, AIPrimaryKey, AIFallbackKey}
}

type secretFile struct {
	Version int               `json:"version"`
	Secrets map[string]string `json:"secrets"` // name -> base64(nonce|ciphertext)
}

func Store(name, value string) error {
	name, err := canonical(name)
	if err != nil {
		return err
	}
	path, err := filePath()
	if err != nil {
		return err
	}
	sf, err := load(path)
	if errors.Is(err, ErrNotFound) {
		sf = secretFile{Secrets: map[string]string{}}
	} else if err != nil {
		return err
	}
	sealed, err := seal(name, []byte(value))
	if err != nil {
		return fmt.Errorf("seal %s: %w", name, err)
	}
	sf.Secrets[name] = sealed
	return save(path, sf)
}

func Fetch(name string) (string, error) {
	name, err := canonical(name)
	if err != nil {
		return "", err
	}
	path, err := filePath()
	if err != nil {
		return "", err
	}
	sf, err := load(path)
	if err != nil {
		return "", err
	}
	sealed, ok := sf.Secrets[name]
	if !ok {
		return "", ErrNotFound
	}
	plain, err := unseal(name, sealed)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	return string(plain), nil
}

// Delete removes a stored secret. Deleting an absent secret is not an error.
func Delete(name string) error {
	name, err := canonical(name)
	if err != nil {
		return err
	}
	path, err := filePath()
	if err != nil {
		return err
	}
	sf, err := load(path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, ok := sf.Secrets[name]; !ok {
		return nil
	}
	delete(sf.Secrets, name)
	return save(path, sf)
}

// Resolve returns the first non-empty value from the environment variable,
// the local store, then the configured fallback.
func Resolve(envVar, name, fallback string) string {
	if envVar != "" {
		if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
			return v
		}
	}
	if name != "" {
		if v, err := Fetch(name); err == nil && v != "" {
			return v
		}
	}
	return fallback
}

func canonical(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("secret name required")
	}
	if !knownNames[name] {
		return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownName, name, strings.Join(Names(), ", "))
	}
	return name, nil
}

func filePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, dirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// load reads the store, returning ErrNotFound when it does not exist yet.
func load(path string) (secretFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return secretFile{}, ErrNotFound
	}
	if err != nil {
		return secretFile{}, err
	}
	var sf secretFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return secretFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if sf.Version > version {
		return secretFile{}, fmt.Errorf("%s: unsupported store version %d", path, sf.Version)
	}
	if sf.Secrets == nil {
		sf.Secrets = map[string]string{}
	}
	return sf, nil
}

func save(path string, sf secretFile) error {
	sf.Version = version
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// aead derives the per-user key. The host name is mixed in so a copied file
// does not open elsewhere.
func aead() (cipher.AEAD, error) {
	host, _ := os.Hostname()
	sum := sha256.Sum256([]byte(strings.Join([]string{dirName, "v1", runtime.GOOS, os.Getenv("USER"), host}, "\x00")))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal encrypts value with the name as associated data, so a ciphertext
// moved under another name fails to open.
func seal(name string, value []byte) (string, error) {
	gcm, err := aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, value, []byte(name))), nil
}

func unseal(name, sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}
	gcm, err := aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	return gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], []byte(name))
}
