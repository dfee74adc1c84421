package handler_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/testutil"
	"github.com/superhero-manager/backend/internal/utils"
)

func (s *APITestSuite) TestRegisterSuccess() {
	w := s.doJSON(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "newuser",
		"password": "SecurePass123",
	}, "")

	s.Equal(http.StatusCreated, w.Code)
	body := testutil.DecodeJSON(s.T(), w)
	s.Equal("User registered successfully", body["message"])

	user := body["user"].(map[string]interface{})
	s.Equal("newuser", user["username"])
	s.Equal(string(models.RoleViewer), user["role"])
	s.NotEmpty(user["id"])
	s.NotContains(w.Body.String(), "password")
}

func (s *APITestSuite) TestRegisterWithRole() {
	w := s.doJSON(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "writer",
		"password": "SecurePass123",
		"role":     "editor",
	}, "")

	s.Equal(http.StatusCreated, w.Code)
	user := testutil.DecodeJSON(s.T(), w)["user"].(map[string]interface{})
	s.Equal("editor", user["role"])
}

func (s *APITestSuite) TestRegisterDuplicateUsername() {
	w := s.doJSON(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "admin",
		"password": "AnotherPass1",
	}, "")

	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(testutil.DecodeJSON(s.T(), w)["error"], "username")
}

func (s *APITestSuite) TestRegisterValidation() {
	w := s.doJSON(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "ab",
		"password": "123",
		"role":     "overlord",
	}, "")

	s.Equal(http.StatusBadRequest, w.Code)
	fields := testutil.DecodeJSON(s.T(), w)["fields"].(map[string]interface{})
	s.Contains(fields, "username")
	s.Contains(fields, "password")
	s.Contains(fields, "role")
}

func (s *APITestSuite) TestRegisterMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
	req.Header.Set("Content-Type", "application/json")
	w := testutil.Do(s.router, req, "")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestLoginSuccess() {
	w := s.doJSON(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "editor",
		"password": "editor123",
	}, "")

	s.Require().Equal(http.StatusOK, w.Code)
	body := testutil.DecodeJSON(s.T(), w)
	token := body["token"].(string)
	s.NotEmpty(token)

	claims, err := utils.ValidateToken(token, testSecret)
	s.Require().NoError(err)
	s.Equal(s.editor.ID, claims.UserID)
	s.Equal("editor", claims.Username)
	s.Equal(models.RoleEditor, claims.Role)
	s.WithinDuration(time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func (s *APITestSuite) TestLoginFailuresLookAlike() {
	wrongPassword := s.doJSON(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "editor",
		"password": "not-the-password",
	}, "")
	unknownUser := s.doJSON(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "nobody",
		"password": "editor123",
	}, "")

	s.Equal(http.StatusUnauthorized, wrongPassword.Code)
	s.Equal(http.StatusUnauthorized, unknownUser.Code)
	s.Equal(wrongPassword.Body.String(), unknownUser.Body.String())
}

func (s *APITestSuite) TestVerify() {
	w := s.doJSON(http.MethodGet, "/api/auth/verify", nil, s.token(s.admin))

	s.Require().Equal(http.StatusOK, w.Code)
	user := testutil.DecodeJSON(s.T(), w)["user"].(map[string]interface{})
	s.Equal(s.admin.ID.String(), user["id"])
	s.Equal("admin", user["username"])
	s.Equal("admin", user["role"])
}

func (s *APITestSuite) TestVerifyRejectsMissingAndBadTokens() {
	s.Equal(http.StatusUnauthorized, s.doJSON(http.MethodGet, "/api/auth/verify", nil, "").Code)
	s.Equal(http.StatusUnauthorized, s.doJSON(http.MethodGet, "/api/auth/verify", nil, "garbage").Code)

	expired, err := utils.GenerateTokenAt(s.admin, testSecret, time.Hour, time.Now().Add(-2*time.Hour))
	s.Require().NoError(err)
	s.Equal(http.StatusUnauthorized, s.doJSON(http.MethodGet, "/api/auth/verify", nil, expired).Code)
}

func (s *APITestSuite) TestAuthRateLimit() {
	s.broker.Close()
	s.journal.Close()

	cfg := *s.cfg
	cfg.RateLimitMaxRequests = 2
	s.router = s.newRouter(&cfg)

	creds := map[string]string{"username": "editor", "password": "wrong-password"}
	s.Equal(http.StatusUnauthorized, s.doJSON(http.MethodPost, "/api/auth/login", creds, "").Code)
	s.Equal(http.StatusUnauthorized, s.doJSON(http.MethodPost, "/api/auth/login", creds, "").Code)

	w := s.doJSON(http.MethodPost, "/api/auth/login", creds, "")
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.NotEmpty(w.Header().Get("Retry-After"))
}
