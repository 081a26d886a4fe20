package security

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

const webhookTokenHeader = "X-Webhook-Token"

// WebhookToken only lets through requests whose X-Webhook-Token matches the
// bcrypt hash. An empty hash disables the check.
func WebhookToken(hash string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if hash == "" {
			return e.Next()
		}

		token := e.Request.Header.Get(webhookTokenHeader)
		if token == "" || !CompareHash([]byte(hash), []byte(token)) {
			return e.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Invalid webhook token",
			})
		}

		return e.Next()
	}
}

func CompareHash(hash, token []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, token) == nil
}

func GenerateHash(token []byte) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(token, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
