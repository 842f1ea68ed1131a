package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"salon-service/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	actorHeader     = "X-Actor-Token"
	actorContextKey = "actor"
)

// ActorAuth verifies signed actor tokens issued by the identity provider.
// A token is base64url(JSON claims) + "." + hex(HMAC-SHA256 of the encoded part).
type ActorAuth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// actorClaims is the signed payload: the actor plus an expiry in unix seconds
type actorClaims struct {
	models.Actor
	ExpiresAt int64 `json:"exp"`
}

// NewActorAuth creates an ActorAuth for secret whose tokens live for ttl
func NewActorAuth(secret string, ttl time.Duration) *ActorAuth {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ActorAuth{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *ActorAuth) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns a token for actor that expires after the configured ttl
func (a *ActorAuth) Sign(actor models.Actor) (string, error) {
	raw, err := json.Marshal(actorClaims{
		Actor:     actor,
		ExpiresAt: a.now().Add(a.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + a.sign(payload), nil
}

func (a *ActorAuth) parse(token string) (models.Actor, bool) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok {
		return models.Actor{}, false
	}
	if !hmac.Equal([]byte(signature), []byte(a.sign(payload))) {
		return models.Actor{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return models.Actor{}, false
	}
	var claims actorClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return models.Actor{}, false
	}
	if claims.ExpiresAt <= a.now().Unix() {
		return models.Actor{}, false
	}
	if claims.UserID <= 0 || !claims.Role.IsValid() {
		return models.Actor{}, false
	}
	return claims.Actor, true
}

// Middleware rejects requests without a valid actor token and stores the actor in the gin context
func (a *ActorAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := a.parse(c.GetHeader(actorHeader))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	actor, _ := c.MustGet(actorContextKey).(models.Actor)
	return actor
}
