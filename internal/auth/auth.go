// Package auth guards the gateway endpoint and reads AMF credential headers.
//
// It does not check credentials against any user store.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/danmuck/amfgate/internal/protocol"
	"github.com/gin-gonic/gin"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// CredentialsHeader is the envelope header Flash clients use for
// setCredentials; its data is {userid, password}.
const CredentialsHeader = "Credentials"

// Validator validates a bearer token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts one shared token. An empty Token denies everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Middleware rejects requests whose Authorization bearer token fails v.
func Middleware(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c.GetHeader("Authorization"))
		if !ok || v.Validate(token) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type Credentials struct {
	UserID   string
	Password string
}

// FromEnvelope reads the Credentials header. ok is false when the header is
// absent or carries no user id.
func FromEnvelope(env *protocol.Envelope) (Credentials, bool) {
	h, found := env.Header(CredentialsHeader)
	if !found || h.Data == nil {
		return Credentials{}, false
	}
	var creds Credentials
	if v, ok := h.Data.Get("userid"); ok {
		creds.UserID, _ = v.AsString()
	}
	if v, ok := h.Data.Get("password"); ok {
		creds.Password, _ = v.AsString()
	}
	return creds, creds.UserID != ""
}
