package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	pkgerrors "github.com/yungbote/mensa-backend/internal/pkg/errors"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

const voterIssuer = "mensa-backend"

// VoterTokenService issues the anonymous voter identity carried in the
// voter cookie. The token subject is the voter fingerprint; only a keyed
// hash of the fingerprint is ever stored.
type VoterTokenService interface {
	Issue() (token string, fingerprint string, err error)
	Verify(token string) (fingerprint string, err error)
	Hash(fingerprint string) string
	TTL() time.Duration
}

type voterTokenService struct {
	log     *logger.Logger
	secret  []byte
	hashKey []byte
	ttl     time.Duration
}

// NewVoterTokenService signs with secret. An empty secret gets a random
// per-process key, so tokens and hashes do not survive a restart.
func NewVoterTokenService(log *logger.Logger, secret string, ttl time.Duration) (VoterTokenService, error) {
	serviceLog := log.With("service", "VoterTokenService")
	key := []byte(strings.TrimSpace(secret))
	if len(key) == 0 {
		serviceLog.Warn("VOTER_TOKEN_SECRET not set, using an ephemeral key")
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate voter key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	hashKey := key
	if len(hashKey) > blake2b.Size {
		sum := blake2b.Sum512(hashKey)
		hashKey = sum[:]
	}
	return &voterTokenService{
		log:     serviceLog,
		secret:  key,
		hashKey: hashKey,
		ttl:     ttl,
	}, nil
}

func (s *voterTokenService) TTL() time.Duration { return s.ttl }

func (s *voterTokenService) Issue() (string, string, error) {
	fingerprint := uuid.New().String()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    voterIssuer,
		Subject:   fingerprint,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign voter token: %w", err)
	}
	return token, fingerprint, nil
}

func (s *voterTokenService) Verify(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", pkgerrors.ErrUnauthorized
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(voterIssuer),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("voter token: %w", pkgerrors.ErrUnauthorized)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("voter token subject: %w", pkgerrors.ErrUnauthorized)
	}
	return claims.Subject, nil
}

func (s *voterTokenService) Hash(fingerprint string) string {
	h, err := blake2b.New256(s.hashKey)
	if err != nil {
		// Only reachable with a key longer than blake2b.Size, which the
		// constructor rules out.
		panic(err)
	}
	h.Write([]byte(fingerprint))
	return hex.EncodeToString(h.Sum(nil))
}
