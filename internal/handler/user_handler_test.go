package handler_test

import (
	"encoding/json"
	"net/http"

	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/testutil"
)

func (s *APITestSuite) TestUsersRequireAdmin() {
	s.Equal(http.StatusUnauthorized, s.doJSON(http.MethodGet, "/api/users", nil, "").Code)
	s.Equal(http.StatusForbidden, s.doJSON(http.MethodGet, "/api/users", nil, s.token(s.editor)).Code)
	s.Equal(http.StatusForbidden, s.doJSON(http.MethodGet, "/api/users", nil, s.token(s.viewer)).Code)
}

func (s *APITestSuite) TestListUsers() {
	w := s.doJSON(http.MethodGet, "/api/users", nil, s.token(s.admin))
	s.Require().Equal(http.StatusOK, w.Code)

	var users []models.UserPublic
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &users))
	s.Len(users, 3)
	s.NotContains(w.Body.String(), "password")
}

func (s *APITestSuite) TestUserAdministration() {
	admin := s.token(s.admin)

	w := s.doJSON(http.MethodPost, "/api/users", map[string]string{
		"username": "newbie",
		"password": "newbie123",
		"role":     "editor",
	}, admin)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	created := testutil.DecodeJSON(s.T(), w)["user"].(map[string]interface{})
	id := created["id"].(string)
	s.Equal("editor", created["role"])

	w = s.doJSON(http.MethodGet, "/api/users/"+id, nil, admin)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("newbie", testutil.DecodeJSON(s.T(), w)["username"])

	w = s.doJSON(http.MethodPut, "/api/users/"+id, map[string]string{
		"username": "veteran",
		"role":     "viewer",
		"password": "changed123",
	}, admin)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	updated := testutil.DecodeJSON(s.T(), w)["user"].(map[string]interface{})
	s.Equal("veteran", updated["username"])
	s.Equal("viewer", updated["role"])

	// The new password works
	w = s.doJSON(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "veteran",
		"password": "changed123",
	}, "")
	s.Equal(http.StatusOK, w.Code)

	// Username collisions are rejected
	w = s.doJSON(http.MethodPut, "/api/users/"+id, map[string]string{"username": "editor"}, admin)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodDelete, "/api/users/"+id, nil, admin)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("User deleted successfully", testutil.DecodeJSON(s.T(), w)["message"])

	s.Equal(http.StatusNotFound, s.doJSON(http.MethodGet, "/api/users/"+id, nil, admin).Code)
	s.Equal(http.StatusNotFound, s.doJSON(http.MethodDelete, "/api/users/"+id, nil, admin).Code)
}

func (s *APITestSuite) TestAdminCannotDeleteSelf() {
	w := s.doJSON(http.MethodDelete, "/api/users/"+s.admin.ID.String(), nil, s.token(s.admin))
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestCreateUserDuplicate() {
	w := s.doJSON(http.MethodPost, "/api/users", map[string]string{
		"username": "viewer",
		"password": "viewer123",
	}, s.token(s.admin))
	s.Equal(http.StatusBadRequest, w.Code)
}
