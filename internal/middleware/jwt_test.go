package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/models"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
)

type validatorStub map[string]string

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	subject, ok := v[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}, nil
}

func newAuthRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		user := ""
		if claims := Claims(c); claims != nil {
			user = claims.UserID()
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	})
	return r
}

func get(r http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequired(t *testing.T) {
	r := newAuthRouter(JWT(validatorStub{"good": "user-1"}))

	w := get(r, "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-1"}`, w.Body.String())

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer bad"} {
		w := get(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	}
}

func TestJWTOptional(t *testing.T) {
	r := newAuthRouter(OptionalJWT(validatorStub{"good": "user-1"}))

	assert.JSONEq(t, `{"user":"user-1"}`, get(r, "bearer good").Body.String())
	assert.JSONEq(t, `{"user":""}`, get(r, "Bearer bad").Body.String())
	assert.JSONEq(t, `{"user":""}`, get(r, "").Body.String())
}
