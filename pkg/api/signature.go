package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"meridian/pkg/config"
	"meridian/pkg/logger"
)

// SignatureHeader carries the queue provider's request signature.
const SignatureHeader = "Upstash-Signature"

const signatureIssuer = "Upstash"

var errBodyMismatch = errors.New("body hash does not match")

// SignatureClaims are the claims of an Upstash-Signature token.
type SignatureClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// Verifier checks signed trigger requests against the current and next signing keys.
type Verifier struct {
	keys      [][]byte
	publicURL string
	log       logger.Logger
}

// NewVerifier returns nil when no signing key is configured, which disables verification.
func NewVerifier(cfg config.WebhookConfig, log logger.Logger) *Verifier {
	var keys [][]byte
	for _, k := range []string{cfg.CurrentSigningKey, cfg.NextSigningKey} {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Verifier{keys: keys, publicURL: strings.TrimRight(cfg.PublicURL, "/"), log: log}
}

// Middleware rejects requests without a valid signature. A nil Verifier lets everything through.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.Next()
			return
		}

		signature := c.GetHeader(SignatureHeader)
		if signature == "" {
			v.log.Warn("Signature missing from request", logger.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing signature"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Could not read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if err := v.Verify(signature, body, c.Request.URL.RequestURI()); err != nil {
			v.log.Warn("Invalid signature", logger.String("path", c.Request.URL.Path), logger.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		c.Next()
	}
}

// Verify accepts the token if any signing key validates it.
func (v *Verifier) Verify(signature string, body []byte, requestURI string) error {
	var errs []error
	for _, key := range v.keys {
		err := v.verifyWithKey(signature, body, requestURI, key)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (v *Verifier) verifyWithKey(signature string, body []byte, requestURI string, key []byte) error {
	claims := &SignatureClaims{}
	_, err := jwt.ParseWithClaims(signature, claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(signatureIssuer))
	if err != nil {
		return err
	}

	if v.publicURL != "" && claims.Subject != v.publicURL+requestURI {
		return fmt.Errorf("subject %q does not match request", claims.Subject)
	}

	sum := sha256.Sum256(body)
	if strings.TrimRight(claims.Body, "=") != base64.RawURLEncoding.EncodeToString(sum[:]) {
		return errBodyMismatch
	}
	return nil
}
