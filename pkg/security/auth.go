// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package security gates every tool call: authenticate, rate-limit,
// authorize, validate inputs, then invoke.
package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Bearer token freshness bounds.
const (
	maxTokenFutureSkew = 60 * time.Second
	maxTokenAge        = 3600 * time.Second
)

// Principal is the authenticated caller.
type Principal struct {
	ClientID    string
	Roles       []string
	Permissions []string
}

// authenticator resolves credentials to a principal.
type authenticator interface {
	Authenticate(ctx context.Context, credential string) (*Principal, error)
}

// noneAuthenticator accepts everyone as an anonymous principal.
type noneAuthenticator struct{}

func (noneAuthenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	return &Principal{ClientID: "anonymous"}, nil
}

// apiKeyAuthenticator compares SHA-256 digests of presented keys against the
// configured hashes. Raw keys are never held.
type apiKeyAuthenticator struct {
	hashes map[string]string // client id -> hex sha256
}

func (a *apiKeyAuthenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, retry.New(retry.KindAuth, "api key is required")
	}

	sum := sha256.Sum256([]byte(credential))
	presented := hex.EncodeToString(sum[:])

	for clientID, want := range a.hashes {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(want)) == 1 {
			return &Principal{ClientID: clientID}, nil
		}
	}
	return nil, retry.New(retry.KindAuth, "unknown api key")
}

// bearerAuthenticator verifies client_id:timestamp:signature tokens where
// the signature is HMAC-SHA256 over "client_id:timestamp".
type bearerAuthenticator struct {
	secret []byte
	now    func() time.Time
}

// SignBearerToken produces a token for a client at the given time. Exposed
// so trusted in-process callers can mint their own credentials.
func SignBearerToken(secret, clientID string, at time.Time) string {
	payload := fmt.Sprintf("%s:%d", clientID, at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return payload + ":" + hex.EncodeToString(mac.Sum(nil))
}

func (a *bearerAuthenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	parts := strings.Split(credential, ":")
	if len(parts) != 3 {
		return nil, retry.New(retry.KindAuth, "malformed bearer token")
	}
	clientID, tsRaw, signature := parts[0], parts[1], parts[2]

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return nil, retry.New(retry.KindAuth, "malformed bearer token timestamp")
	}

	issued := time.Unix(ts, 0)
	now := a.now()
	if issued.After(now.Add(maxTokenFutureSkew)) {
		return nil, retry.New(retry.KindAuth, "bearer token timestamp is in the future")
	}
	if now.Sub(issued) > maxTokenAge {
		return nil, retry.New(retry.KindAuth, "bearer token has expired")
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(clientID + ":" + tsRaw))
	want := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(signature), []byte(want)) != 1 {
		return nil, retry.New(retry.KindAuth, "bearer token signature mismatch")
	}

	return &Principal{ClientID: clientID}, nil
}

// jwtAuthenticator validates tokens against a JWKS endpoint, auto-refreshed
// to handle key rotation.
type jwtAuthenticator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

func newJWTAuthenticator(cfg *config.SecurityConfig) (*jwtAuthenticator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, retry.Wrap(retry.KindConfig, "failed to register JWKS URL", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, retry.Wrap(retry.KindConnection, "failed to fetch JWKS", err)
	}

	return &jwtAuthenticator{
		jwksURL:  cfg.JWKSURL,
		cache:    cache,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

func (a *jwtAuthenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	keyset, err := a.cache.Get(ctx, a.jwksURL)
	if err != nil {
		return nil, retry.Wrap(retry.KindConnection, "failed to get JWKS", err)
	}

	options := []jwt.ParseOption{
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
	}
	if a.issuer != "" {
		options = append(options, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		options = append(options, jwt.WithAudience(a.audience))
	}

	token, err := jwt.Parse([]byte(credential), options...)
	if err != nil {
		return nil, retry.Wrap(retry.KindAuth, "invalid token", err)
	}

	p := &Principal{ClientID: token.Subject()}
	if role, ok := token.Get("role"); ok {
		if s, ok := role.(string); ok {
			p.Roles = append(p.Roles, s)
		}
	}
	if perms, ok := token.Get("permissions"); ok {
		if list, ok := perms.([]any); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					p.Permissions = append(p.Permissions, s)
				}
			}
		}
	}
	return p, nil
}

func newAuthenticator(cfg *config.SecurityConfig) (authenticator, error) {
	switch cfg.AuthMethod {
	case config.AuthNone:
		return noneAuthenticator{}, nil
	case config.AuthAPIKey:
		return &apiKeyAuthenticator{hashes: cfg.APIKeyHashes}, nil
	case config.AuthBearerToken:
		return &bearerAuthenticator{secret: []byte(cfg.SharedSecret), now: time.Now}, nil
	case config.AuthJWT:
		return newJWTAuthenticator(cfg)
	}
	return nil, retry.Newf(retry.KindConfig, "unsupported auth method: %s", cfg.AuthMethod)
}
