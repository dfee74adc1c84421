package handler_test

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/testutil"
)

func heroForm(name, alias, universe string) map[string]string {
	return map[string]string{
		"nom":         name,
		"alias":       alias,
		"univers":     universe,
		"description": "A hero of " + universe,
		"pouvoirs":    `["flight", " strength "]`,
		"stats":       `{"strength": 120, "speed": "42.6"}`,
	}
}

func (s *APITestSuite) imagePath(ref string) string {
	return filepath.Join(s.cfg.UploadDir, filepath.Base(ref))
}

func (s *APITestSuite) TestHeroLifecycle() {
	editor := s.token(s.editor)

	// Create with image
	w := s.doForm(http.MethodPost, "/api/heroes", heroForm("Clark Kent", "Superman", "DC"), testutil.PNG(s.T()), editor)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	created := s.decodeHero(w)
	s.Equal("Superman", created.Alias)
	s.Equal([]string{"flight", "strength"}, created.Powers)
	s.Equal(models.StatMax, created.Stats.Strength)
	s.Equal(43, created.Stats.Speed)
	s.Equal(models.StatDefault, created.Stats.Combat)
	s.True(strings.HasPrefix(created.Image, "/uploads/"))
	s.FileExists(s.imagePath(created.Image))

	// The stored image is served statically
	img := s.doJSON(http.MethodGet, created.Image, nil, "")
	s.Equal(http.StatusOK, img.Code)
	s.Equal(testutil.PNG(s.T()), img.Body.Bytes())

	// Get
	w = s.doJSON(http.MethodGet, "/api/heroes/"+created.ID.String(), nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(created.ID, s.decodeHero(w).ID)

	// Update replaces the image and keeps untouched fields
	w = s.doForm(http.MethodPut, "/api/heroes/"+created.ID.String(),
		map[string]string{"description": "Last son of Krypton"}, testutil.PNG(s.T()), editor)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	updated := s.decodeHero(w)
	s.Equal("Last son of Krypton", updated.Description)
	s.Equal("Superman", updated.Alias)
	s.Equal(created.Stats, updated.Stats)
	s.NotEqual(created.Image, updated.Image)
	s.NoFileExists(s.imagePath(created.Image))
	s.FileExists(s.imagePath(updated.Image))

	// Delete removes the record and its file
	w = s.doJSON(http.MethodDelete, "/api/heroes/"+created.ID.String(), nil, s.token(s.admin))
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("Hero deleted successfully", testutil.DecodeJSON(s.T(), w)["message"])
	s.NoFileExists(s.imagePath(updated.Image))

	w = s.doJSON(http.MethodGet, "/api/heroes/"+created.ID.String(), nil, "")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *APITestSuite) TestCreateHeroWithoutImage() {
	w := s.doForm(http.MethodPost, "/api/heroes", heroForm("Diana", "Wonder Woman", "DC"), nil, s.token(s.admin))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Empty(s.decodeHero(w).Image)
}

func (s *APITestSuite) TestCreateHeroValidation() {
	w := s.doForm(http.MethodPost, "/api/heroes", map[string]string{
		"nom":   "Nameless",
		"stats": `{"speed": "fast"}`,
	}, nil, s.token(s.editor))

	s.Require().Equal(http.StatusBadRequest, w.Code)
	fields := testutil.DecodeJSON(s.T(), w)["fields"].(map[string]interface{})
	s.Contains(fields, "alias")
	s.Contains(fields, "univers")
	s.Contains(fields, "description")
	s.Contains(fields, "stats.speed")
	s.NotContains(fields, "nom")
}

func (s *APITestSuite) TestCreateHeroRejectsNonImage() {
	w := s.doForm(http.MethodPost, "/api/heroes", heroForm("Bruce", "Batman", "DC"), []byte("just some text"), s.token(s.editor))

	s.Require().Equal(http.StatusBadRequest, w.Code)
	fields := testutil.DecodeJSON(s.T(), w)["fields"].(map[string]interface{})
	s.Contains(fields, "image")

	entries, err := os.ReadDir(s.cfg.UploadDir)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *APITestSuite) TestCreateHeroOversizedImage() {
	big := append(testutil.PNG(s.T()), bytes.Repeat([]byte{0}, int(s.cfg.MaxUploadSize))...)
	w := s.doForm(http.MethodPost, "/api/heroes", heroForm("Bruce", "Batman", "DC"), big, s.token(s.editor))
	s.Equal(http.StatusRequestEntityTooLarge, w.Code)
}

func (s *APITestSuite) TestHeroWriteAuthorization() {
	form := heroForm("Logan", "Wolverine", "Marvel")

	s.Equal(http.StatusUnauthorized, s.doForm(http.MethodPost, "/api/heroes", form, nil, "").Code)

	w := s.doForm(http.MethodPost, "/api/heroes", form, nil, s.token(s.viewer))
	s.Equal(http.StatusForbidden, w.Code)
	body := testutil.DecodeJSON(s.T(), w)
	s.Equal("viewer", body["yourRole"])

	hero := testutil.CreateTestHero(s.T(), s.testDB.DB, testutil.NewHeroFactory(1).Hero("Marvel"))

	w = s.doJSON(http.MethodDelete, "/api/heroes/"+hero.ID.String(), nil, s.token(s.editor))
	s.Equal(http.StatusForbidden, w.Code)

	w = s.doJSON(http.MethodDelete, "/api/heroes/"+hero.ID.String(), nil, s.token(s.admin))
	s.Equal(http.StatusOK, w.Code)
}

func (s *APITestSuite) TestUnknownHero() {
	missing := "00000000-0000-4000-8000-000000000000"
	admin := s.token(s.admin)

	s.Equal(http.StatusNotFound, s.doJSON(http.MethodGet, "/api/heroes/"+missing, nil, "").Code)
	s.Equal(http.StatusNotFound, s.doJSON(http.MethodGet, "/api/heroes/not-an-id", nil, "").Code)
	s.Equal(http.StatusNotFound, s.doForm(http.MethodPut, "/api/heroes/"+missing, map[string]string{"alias": "x"}, nil, admin).Code)
	s.Equal(http.StatusNotFound, s.doJSON(http.MethodDelete, "/api/heroes/"+missing, nil, admin).Code)
}

func (s *APITestSuite) TestListHeroesSearchFilterSort() {
	factory := testutil.NewHeroFactory(42)
	for _, h := range []struct{ name, alias, universe string }{
		{"Peter Parker", "Spider-Man", "Marvel Comics"},
		{"Miles Morales", "Spider-Man", "Marvel"},
		{"Bruce Wayne", "Batman", "DC Comics"},
		{"Mark Grayson", "Invincible", "Image Comics"},
	} {
		hero := factory.Hero(h.universe)
		hero.Name, hero.Alias = h.name, h.alias
		testutil.CreateTestHero(s.T(), s.testDB.DB, hero)
	}

	names := func(target string) []string {
		w := s.doJSON(http.MethodGet, target, nil, "")
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		var out []string
		for _, h := range s.decodeHeroes(w) {
			out = append(out, h.Name)
		}
		return out
	}

	s.Equal([]string{"Peter Parker", "Miles Morales", "Bruce Wayne", "Mark Grayson"}, names("/api/heroes"))
	s.Equal([]string{"Miles Morales", "Peter Parker"}, names("/api/heroes?search=spiderman&sort=alpha_asc"))
	s.Equal([]string{"Mark Grayson"}, names("/api/heroes?univers=Autre"))
	s.Equal([]string{"Bruce Wayne"}, names("/api/heroes?univers=dc"))
	s.Equal([]string{"Mark Grayson", "Bruce Wayne", "Miles Morales", "Peter Parker"}, names("/api/heroes?sort=date_desc"))
	s.Empty(names("/api/heroes?search=nobody"))
}

func (s *APITestSuite) TestListHeroesInvalidSort() {
	w := s.doJSON(http.MethodGet, "/api/heroes?sort=random", nil, "")
	s.Require().Equal(http.StatusBadRequest, w.Code)
	fields := testutil.DecodeJSON(s.T(), w)["fields"].(map[string]interface{})
	s.Contains(fields, "sort")
}

func (s *APITestSuite) TestListHeroesCacheInvalidatedByWrites() {
	testutil.CreateTestHero(s.T(), s.testDB.DB, testutil.NewHeroFactory(3).Hero("Marvel"))

	first := s.doJSON(http.MethodGet, "/api/heroes", nil, "")
	s.Equal("MISS", first.Header().Get("X-Cache"))
	second := s.doJSON(http.MethodGet, "/api/heroes", nil, "")
	s.Equal("HIT", second.Header().Get("X-Cache"))
	s.Equal(first.Body.String(), second.Body.String())

	w := s.doForm(http.MethodPost, "/api/heroes", heroForm("Wade Wilson", "Deadpool", "Marvel"), nil, s.token(s.editor))
	s.Require().Equal(http.StatusCreated, w.Code)

	third := s.doJSON(http.MethodGet, "/api/heroes", nil, "")
	s.Equal("MISS", third.Header().Get("X-Cache"))
	s.Len(s.decodeHeroes(third), 2)
}
