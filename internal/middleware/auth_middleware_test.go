package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/utils"
)

const secret = "middleware-secret"

func tokenFor(t *testing.T, role models.Role) string {
	t.Helper()
	user := &models.User{ID: uuid.New(), Username: "tester", Role: role}
	token, err := utils.GenerateToken(user, secret, time.Hour)
	require.NoError(t, err)
	return token
}

func gatedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.DELETE("/heroes/:id",
		RequireAuth(secret),
		RequireRole(models.RoleAdmin),
		func(c *gin.Context) {
			claims, ok := GetClaims(c)
			if !ok {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, gin.H{"by": claims.Username})
		},
	)
	// Role gate without presence gate
	router.GET("/misconfigured", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func call(router *gin.Engine, method, target, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuth_Rejections(t *testing.T) {
	router := gatedRouter()

	expired, err := utils.GenerateTokenAt(
		&models.User{ID: uuid.New(), Username: "old", Role: models.RoleAdmin},
		secret, time.Hour, time.Now().Add(-2*time.Hour),
	)
	require.NoError(t, err)

	forged, err := utils.GenerateToken(
		&models.User{ID: uuid.New(), Username: "mallory", Role: models.RoleAdmin},
		"other-secret", time.Hour,
	)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer abc.def.ghi"},
		{"expired token", "Bearer " + expired},
		{"wrong signature", "Bearer " + forged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(router, http.MethodDelete, "/heroes/1", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRequireRole_EditorForbidden(t *testing.T) {
	router := gatedRouter()

	w := call(router, http.MethodDelete, "/heroes/1", "Bearer "+tokenFor(t, models.RoleEditor))
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body struct {
		Error         string   `json:"error"`
		RequiredRoles []string `json:"requiredRoles"`
		YourRole      string   `json:"yourRole"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "insufficient role", body.Error)
	assert.Equal(t, []string{"admin"}, body.RequiredRoles)
	assert.Equal(t, "editor", body.YourRole)
}

func TestRequireRole_AdminAllowed(t *testing.T) {
	router := gatedRouter()

	w := call(router, http.MethodDelete, "/heroes/1", "Bearer "+tokenFor(t, models.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tester")
}

func TestRequireRole_WithoutClaims(t *testing.T) {
	router := gatedRouter()

	w := call(router, http.MethodGet, "/misconfigured", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
