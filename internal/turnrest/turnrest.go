// Package turnrest mints coturn-compatible TURN REST credentials so peers
// behind restrictive NATs can fall back to a relayed transport.
//
// See:
// - https://github.com/coturn/coturn/wiki/turnserver
// - https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest
//
// Algorithm (coturn-compatible):
//
//	username   = <unix_expiry_timestamp>:<realm>:<peer_id_or_nonce>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// Expiry is computed from the server clock in UTC.
package turnrest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// SharedSecret must match coturn's static-auth-secret.
	SharedSecret string
	// TTL is how long minted credentials stay valid. Sub-second precision is
	// lost; coturn compares whole unix seconds.
	TTL time.Duration
	// Realm is the middle username component, identifying this deployment.
	Realm string

	// Now and NonceSource are replaceable for tests.
	Now         func() time.Time
	NonceSource func() (string, error)
}

type Generator struct {
	sharedSecret []byte
	ttl          time.Duration
	realm        string
	now          func() time.Time
	nonceSource  func() (string, error)
}

func New(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("TTL must be > 0")
	}
	if cfg.Realm == "" {
		return nil, errors.New("Realm is required")
	}
	if strings.ContainsRune(cfg.Realm, ':') {
		return nil, errors.New("Realm must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NonceSource == nil {
		cfg.NonceSource = cryptoRandomNonce
	}
	return &Generator{
		sharedSecret: []byte(cfg.SharedSecret),
		ttl:          cfg.TTL,
		realm:        cfg.Realm,
		now:          cfg.Now,
		nonceSource:  cfg.NonceSource,
	}, nil
}

type Credentials struct {
	Username   string
	Credential string
	ExpiresAt  time.Time
}

// ForPeer mints credentials whose username carries the peer's identity, so
// coturn logs and quota counters can be correlated back to a broker peer.
func (g *Generator) ForPeer(peerID string) (Credentials, error) {
	if peerID == "" {
		return Credentials{}, errors.New("peerID is required")
	}
	if strings.ContainsRune(peerID, ':') {
		return Credentials{}, errors.New("peerID must not contain ':'")
	}
	return g.mint(peerID), nil
}

// Anonymous mints credentials for clients that have not identified yet. The
// identity component is a random nonce.
func (g *Generator) Anonymous() (Credentials, error) {
	nonce, err := g.nonceSource()
	if err != nil {
		return Credentials{}, err
	}
	return g.ForPeer(nonce)
}

func (g *Generator) mint(identity string) Credentials {
	expiresAt := g.now().UTC().Add(g.ttl)
	username := fmt.Sprintf("%d:%s:%s", expiresAt.Unix(), g.realm, identity)
	mac := hmac.New(sha1.New, g.sharedSecret)
	_, _ = mac.Write([]byte(username))
	return Credentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiresAt:  expiresAt,
	}
}

func cryptoRandomNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
