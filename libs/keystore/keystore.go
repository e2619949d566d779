// Package keystore keeps the provider API key encrypted at rest.
//
// A key file holds: magic | salt | nonce | AES-256-GCM ciphertext. The AES
// key is derived with PBKDF2-SHA-256 from a passphrase, which is read from
// $GPTSHELL_PASSPHRASE or, when unset, derived from the host and user name.
// The fallback only stops casual reading of the file; set a passphrase for
// real protection.
package keystore

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"os/user"
	"strings"
	"sync"

	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/utils"
	"golang.org/x/crypto/pbkdf2"
)

const (
	EnvPassphrase = "GPTSHELL_PASSPHRASE"

	KeySize   = 32
	SaltSize  = 16
	NonceSize = 12

	// DefaultIterations follows the OWASP 2023 PBKDF2-SHA-256 guidance.
	DefaultIterations = 600000
)

var magic = []byte("GSK1")

// Store 凭据的加解密接口
type Store interface {
	Encrypt(path, plaintext string) error
	Decrypt(path string) (string, error)
}

type FileStore struct {
	mu         sync.RWMutex
	passphrase string
	iterations int
}

type Option func(*FileStore)

func WithPassphrase(p string) Option {
	return func(s *FileStore) {
		if p != "" {
			s.passphrase = p
		}
	}
}

// WithIterations lowers the KDF cost; tests use it to stay fast.
func WithIterations(n int) Option {
	return func(s *FileStore) {
		if n > 0 {
			s.iterations = n
		}
	}
}

func NewFileStore(opts ...Option) *FileStore {
	s := &FileStore{
		passphrase: defaultPassphrase(),
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultPassphrase() string {
	if p := os.Getenv(EnvPassphrase); p != "" {
		return p
	}
	host, _ := os.Hostname()
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return "gptshell:" + host + ":" + name
}

func (s *FileStore) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(s.passphrase), salt, s.iterations, KeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt 加密并写入 path，父目录不存在时自动创建
func (s *FileStore) Encrypt(path, plaintext string) error {
	if path == "" {
		return errors.New(errors.KindValidation, "credential path is empty")
	}
	if strings.TrimSpace(plaintext) == "" {
		return errors.New(errors.KindValidation, "api key is empty")
	}

	salt := make([]byte, SaltSize)
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return errors.Wrap(errors.KindConfig, err, "failed to generate salt")
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return errors.Wrap(errors.KindConfig, err, "failed to generate nonce")
	}

	key := s.deriveKey(salt)
	defer zero(key)
	gcm, err := newGCM(key)
	if err != nil {
		return errors.Wrap(errors.KindConfig, err, "failed to initialize cipher")
	}

	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(gcm.Seal(nil, nonce, []byte(strings.TrimSpace(plaintext)), magic))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := utils.AtomicWriteFile(path, buf.Bytes(), 0o600, 0o700); err != nil {
		return errors.Wrap(errors.KindConfig, err, "failed to write api key to "+path)
	}
	return nil
}

// Decrypt 读取并解密 path 中的 API key
func (s *FileStore) Decrypt(path string) (string, error) {
	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.KindNotFound,
				"api key not found at %s, use the set-key command to save your api key", path)
		}
		return "", errors.Wrap(errors.KindConfig, err, "failed to read api key from "+path)
	}

	header := len(magic) + SaltSize + NonceSize
	if len(data) <= header || !bytes.Equal(data[:len(magic)], magic) {
		return "", errors.Newf(errors.KindConfig, "%s is not a gptshell key file", path)
	}
	salt := data[len(magic) : len(magic)+SaltSize]
	nonce := data[len(magic)+SaltSize : header]

	key := s.deriveKey(salt)
	defer zero(key)
	gcm, err := newGCM(key)
	if err != nil {
		return "", errors.Wrap(errors.KindConfig, err, "failed to initialize cipher")
	}
	plaintext, err := gcm.Open(nil, nonce, data[header:], magic)
	if err != nil {
		return "", errors.Newf(errors.KindConfig, "failed to decrypt api key at %s: wrong passphrase or corrupted file", path)
	}
	return string(plaintext), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
