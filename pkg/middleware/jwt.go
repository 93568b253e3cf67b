package middleware

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nao1215/stayhub/pkg/apperr"
)

// コンテキストキー。
const (
	// contextKeyPrincipal は認証済みPrincipalを格納するキー。
	contextKeyPrincipal = "principal"
	// contextKeyUserID は認証済みユーザーIDを格納するキー。
	contextKeyUserID = "user_id"
)

// Principal は検証済みトークンから得られた認証主体を表す。
// リクエスト単位で生成され、永続化されない。
type Principal struct {
	// Subject はユーザーの一意識別子（subクレーム、無ければidクレーム）。
	Subject string
	// Roles はユーザーが持つロールの集合。
	Roles map[string]struct{}
	// Claims はトークンのクレーム全体。
	Claims jwt.MapClaims
}

// HasRole はPrincipalが指定ロールを持つかを返す。
func (p *Principal) HasRole(role string) bool {
	_, ok := p.Roles[role]
	return ok
}

// TokenVerifier は起動時に読み込んだ公開鍵でJWTを検証する。
// 生成後は読み取り専用であり、並行リクエストからロックなしで使用できる。
type TokenVerifier struct {
	// key は署名検証用の公開鍵。
	key any
	// methods は鍵の種類に対応する許可済み署名アルゴリズム。
	methods []string
}

// LoadPublicKey はPEM形式の公開鍵を取得する。
// literalが指定されていればそれを優先し、無ければpathのファイルを読み込む。
// 環境変数で渡される "\n" のエスケープは改行に戻す。
func LoadPublicKey(literal, path string) ([]byte, error) {
	if literal != "" {
		return []byte(strings.ReplaceAll(literal, `\n`, "\n")), nil
	}
	if path == "" {
		return nil, errors.New("公開鍵もそのパスも設定されていません")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("公開鍵の読み込みに失敗 (%s): %w", path, err)
	}
	return data, nil
}

// NewTokenVerifier はPEM形式の公開鍵からTokenVerifierを生成する。
// 鍵の種類（RSA/ECDSA/Ed25519）に対応するアルゴリズムのみを許可し、
// 異なる方式で署名されたトークンを拒否する。
func NewTokenVerifier(pemData []byte) (*TokenVerifier, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("PEMブロックが見つかりません")
	}

	var pub any
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("RSA公開鍵のパースに失敗: %w", err)
		}
		pub = key
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("証明書のパースに失敗: %w", err)
		}
		pub = cert.PublicKey
	default:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("公開鍵のパースに失敗: %w", err)
		}
		pub = key
	}

	var methods []string
	switch k := pub.(type) {
	case *rsa.PublicKey:
		methods = []string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodRS384.Alg(),
			jwt.SigningMethodRS512.Alg(),
		}
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			methods = []string{jwt.SigningMethodES256.Alg()}
		case elliptic.P384():
			methods = []string{jwt.SigningMethodES384.Alg()}
		case elliptic.P521():
			methods = []string{jwt.SigningMethodES512.Alg()}
		default:
			return nil, errors.New("未対応の楕円曲線です")
		}
	case ed25519.PublicKey:
		methods = []string{jwt.SigningMethodEdDSA.Alg()}
	default:
		return nil, fmt.Errorf("未対応の公開鍵の種類です: %T", pub)
	}

	return &TokenVerifier{key: pub, methods: methods}, nil
}

// Verify はトークンの署名と有効期限を検証し、Principalを返す。
// tokenStringは "Bearer " を除いたトークン本体。
func (v *TokenVerifier) Verify(tokenString string) (*Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods(v.methods))
	if err != nil || !token.Valid {
		return nil, apperr.Wrap(apperr.KindInvalidToken, "Invalid or expired token", err)
	}

	subject := claimString(claims, "sub")
	if subject == "" {
		subject = claimString(claims, "id")
	}
	if subject == "" {
		return nil, apperr.New(apperr.KindInvalidToken, "Invalid or expired token")
	}

	return &Principal{
		Subject: subject,
		Roles:   claimRoles(claims),
		Claims:  claims,
	}, nil
}

// Authenticate はAuthorizationヘッダーを検証してPrincipalを返す。
func (v *TokenVerifier) Authenticate(h http.Header) (*Principal, error) {
	authHeader := h.Get("Authorization")
	if authHeader == "" {
		return nil, apperr.New(apperr.KindMissingCredential, "Missing Authorization header")
	}

	scheme, token, found := strings.Cut(strings.TrimSpace(authHeader), " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, apperr.New(apperr.KindMalformedCredential, "Invalid Authorization format")
	}

	return v.Verify(token)
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにPrincipalとユーザーIDを設定する。
func JWTAuth(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := v.Authenticate(c.Request.Header)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			apperr.Abort(c, err)
			return
		}

		c.Set(contextKeyPrincipal, principal)
		c.Set(contextKeyUserID, principal.Subject)
		c.Next()
	}
}

// GetPrincipal はGinコンテキストからPrincipalを取得する。
// JWTAuthミドルウェアが適用されていない場合はfalseを返す。
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// claimString はクレームを文字列として取り出す。数値IDも文字列化する。
func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// claimRoles は roles（配列または文字列）と role クレームからロール集合を作る。
func claimRoles(claims jwt.MapClaims) map[string]struct{} {
	roles := make(map[string]struct{})
	add := func(v any) {
		if s, ok := v.(string); ok && s != "" {
			roles[s] = struct{}{}
		}
	}
	switch v := claims["roles"].(type) {
	case []any:
		for _, r := range v {
			add(r)
		}
	case string:
		add(v)
	}
	add(claims["role"])
	return roles
}
