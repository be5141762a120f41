package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"bazaar/market"
)

const (
	RoleAdmin = "admin"

	accessTokenCookie = "access_token"
	actorContextKey   = "bazaar.actor"
)

// Claims 是存取權杖中攜帶的使用者資訊，Subject 為使用者 ID
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Actor 將權杖轉為發出請求的使用者
func (c *Claims) Actor() market.Actor {
	return market.Actor{
		ID:    c.Subject,
		Email: c.Email,
		Name:  c.Name,
		Admin: c.Role == RoleAdmin,
	}
}

// SignToken 以 HS256 簽發權杖
func SignToken(secret []byte, claims Claims) (string, error) {
	const op = "SignToken"
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err)
	}
	return token, nil
}

func ParseAndValidateJWT(tokenString string, secret []byte, issuer string) (*Claims, error) {
	const op = "ParseJWT"
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%s: token has no subject", op)
	}
	return claims, nil
}

// accessToken 依序從 Authorization header 與 cookie 取得權杖
func accessToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return "", errors.New("authorization header must use the Bearer scheme")
		}
		return strings.TrimSpace(token), nil
	}
	if cookie, err := c.Cookie(accessTokenCookie); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", errors.New("access token is required")
}

// requireUser 驗證權杖並把使用者放進 context，失敗時回應 401
func (impl *ServerImpl) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := accessToken(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		claims, err := ParseAndValidateJWT(tokenString, impl.secret, impl.issuer)
		if err != nil {
			impl.logger.Debug("Fail to parse and validate JWT", slog.Any("error", err))
			abortWithError(c, http.StatusUnauthorized, "Unauthorized", "access token is invalid or expired")
			return
		}
		c.Set(actorContextKey, claims.Actor())
		c.Next()
	}
}

// requireAdmin 必須放在 requireUser 之後
func (impl *ServerImpl) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Admin {
			abortWithError(c, http.StatusForbidden, "Forbidden", "admin role is required")
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) market.Actor {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return market.Actor{}
	}
	actor, _ := value.(market.Actor)
	return actor
}
