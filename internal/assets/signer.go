package assets

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"mygpt-backend/internal/model"

	"github.com/google/uuid"
)

var (
	ErrSignature    = errors.New("invalid upload signature")
	ErrExpired      = errors.New("upload parameters expired")
	ErrTokenReused  = errors.New("upload token already used")
	ErrNoPrivateKey = errors.New("upload private key is not configured")
)

// Signer hands out short-lived upload parameters: a random token, an expiry and
// hex(HMAC-SHA1(privateKey, token+expire)). Each token is accepted once.
type Signer struct {
	publicKey  string
	privateKey []byte
	ttl        time.Duration
	now        func() time.Time

	mu   sync.Mutex
	used map[string]int64
}

func NewSigner(publicKey, privateKey string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Signer{
		publicKey:  publicKey,
		privateKey: []byte(privateKey),
		ttl:        ttl,
		now:        time.Now,
		used:       make(map[string]int64),
	}
}

func (s *Signer) sign(token string, expire int64) string {
	mac := hmac.New(sha1.New, s.privateKey)
	mac.Write([]byte(token + strconv.FormatInt(expire, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Issue() (model.UploadAuth, error) {
	if len(s.privateKey) == 0 {
		return model.UploadAuth{}, ErrNoPrivateKey
	}

	token := uuid.New().String()
	expire := s.now().Add(s.ttl).Unix()
	return model.UploadAuth{
		Token:     token,
		Expire:    expire,
		Signature: s.sign(token, expire),
		PublicKey: s.publicKey,
	}, nil
}

// Verify checks a parameter set and burns its token.
func (s *Signer) Verify(token string, expire int64, signature string) error {
	if len(s.privateKey) == 0 {
		return ErrNoPrivateKey
	}
	if !hmac.Equal([]byte(s.sign(token, expire)), []byte(signature)) {
		return ErrSignature
	}

	now := s.now().Unix()
	if expire < now {
		return ErrExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for t, exp := range s.used {
		if exp < now {
			delete(s.used, t)
		}
	}
	if _, ok := s.used[token]; ok {
		return ErrTokenReused
	}
	s.used[token] = expire
	return nil
}
