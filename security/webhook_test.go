package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookEvent(token string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", nil)
	if token != "" {
		req.Header.Set(webhookTokenHeader, token)
	}
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func TestGenerateAndCompareHash(t *testing.T) {
	hash, err := GenerateHash([]byte("s3cret"))
	require.NoError(t, err)

	assert.True(t, CompareHash([]byte(hash), []byte("s3cret")))
	assert.False(t, CompareHash([]byte(hash), []byte("guess")))
}

func TestWebhookToken_RejectsWrongToken(t *testing.T) {
	hash, err := GenerateHash([]byte("s3cret"))
	require.NoError(t, err)

	for _, token := range []string{"", "guess"} {
		e, rec := webhookEvent(token)
		require.NoError(t, WebhookToken(hash)(e))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}
