// Package token 提供了校验外部身份提供方签发的 JSON Web Tokens (JWT) 的功能。
package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"llm-eval-go/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// Principal 是通过认证的调用方。
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Claims 定义了我们从 Keycloak token 中读取的声明。
// 它嵌入了 jwt.RegisteredClaims 以包含标准的 JWT 声明（如 sub、过期时间）。
type Claims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier 校验 bearer token 并返回调用方身份。
type Verifier interface {
	Verify(ctx context.Context, tokenString string) (*Principal, error)
}

var (
	ErrMissingSubject = errors.New("token 缺少 sub 声明")
	ErrUnknownKey     = errors.New("找不到与 token kid 匹配的公钥")
)

// minRefreshInterval 限制 kid 未命中时重新拉取 JWKS 的频率。
const minRefreshInterval = 30 * time.Second

// JWTVerifier 通过 JWKS 公钥校验 RS256 等非对称签名；配置了 devSecret 时也接受 HS256。
// audience 不做校验。
type JWTVerifier struct {
	jwksURL    string
	algorithms []string
	devSecret  []byte
	cacheTTL   time.Duration
	httpClient *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewVerifier 根据认证配置创建校验器。
func NewVerifier(cfg config.AuthConfig) *JWTVerifier {
	algs := cfg.Algorithms
	if len(algs) == 0 {
		algs = []string{"RS256"}
	}
	ttl := time.Duration(cfg.JWKSCacheMinute) * time.Minute
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	v := &JWTVerifier{
		jwksURL:    cfg.JWKSEndpoint(),
		algorithms: algs,
		cacheTTL:   ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys:       map[string]*rsa.PublicKey{},
	}
	if cfg.DevSecret != "" {
		v.devSecret = []byte(cfg.DevSecret)
		v.algorithms = append(append([]string{}, algs...), jwt.SigningMethodHS256.Alg())
	}
	return v
}

// Verify 解析并校验 token 字符串，成功时返回调用方身份。
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(v.devSecret) == 0 {
				return nil, errors.New("unexpected signing method")
			}
			return v.devSecret, nil
		case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
			kid, _ := t.Header["kid"].(string)
			return v.publicKey(ctx, kid)
		default:
			return nil, errors.New("unexpected signing method")
		}
	}, jwt.WithValidMethods(v.algorithms), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return &Principal{ID: claims.Subject, Name: claims.PreferredUsername, Email: claims.Email}, nil
}

// publicKey 优先使用缓存；缓存过期或 kid 未命中时重新拉取 JWKS。
func (v *JWTVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < v.cacheTTL
	recent := time.Since(v.fetchedAt) < minRefreshInterval
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}
	if !ok && recent {
		return nil, ErrUnknownKey
	}

	if err := v.refresh(ctx); err != nil {
		// 身份提供方暂时不可用时继续使用已缓存的公钥
		if ok {
			return key, nil
		}
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	// 未指定 kid 且只有一把密钥时直接使用
	if kid == "" && len(v.keys) == 1 {
		for _, k := range v.keys {
			return k, nil
		}
	}
	return nil, ErrUnknownKey
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *JWTVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("拉取 JWKS 失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS 返回非 200 状态码: %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("解析 JWKS 失败: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()
	return nil
}

func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() <= 1 {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil
}

// GenerateDevToken 使用 HS256 签发本地开发用的 token。
func GenerateDevToken(secret, subject, username, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		PreferredUsername: username,
		Email:             email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
