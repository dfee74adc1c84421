package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/superhero-manager/backend/internal/broker"
	"github.com/superhero-manager/backend/internal/config"
	"github.com/superhero-manager/backend/internal/metrics"
	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/repository"
	"github.com/superhero-manager/backend/internal/router"
	"github.com/superhero-manager/backend/internal/service"
	"github.com/superhero-manager/backend/internal/storage"
	"github.com/superhero-manager/backend/internal/testutil"
	"github.com/superhero-manager/backend/internal/wal"
)

const testSecret = "handler-test-secret"

// APITestSuite drives the full router over in-memory SQLite and miniredis
type APITestSuite struct {
	suite.Suite
	testDB    *testutil.TestDatabase
	testRedis *testutil.TestRedis

	cfg     *config.Config
	images  *storage.ImageStore
	journal *wal.WAL
	broker  *broker.LocalBroker
	router  *gin.Engine

	admin  *models.User
	editor *models.User
	viewer *models.User
}

func (s *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.testDB = testutil.SetupTestDatabase(s.T())
}

func (s *APITestSuite) TearDownSuite() {
	s.testDB.Teardown(s.T())
}

func (s *APITestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.testDB.DB)
	s.testRedis = testutil.SetupTestRedis(s.T())

	dir := s.T().TempDir()
	s.cfg = &config.Config{
		JWTSecret:            testSecret,
		JWTExpiry:            time.Hour,
		Environment:          "development",
		UploadDir:            filepath.Join(dir, "uploads"),
		UploadURLPrefix:      "/uploads",
		MaxUploadSize:        64 << 10,
		CORSOrigins:          []string{"http://localhost:5173"},
		CacheTTL:             time.Minute,
		RateLimitMaxRequests: 1000,
		RateLimitWindow:      time.Minute,
		RateLimitBlockTime:   time.Minute,
	}
	s.router = s.newRouter(s.cfg)

	s.admin = testutil.CreateTestUser(s.T(), s.testDB.DB, "admin", "admin123", models.RoleAdmin)
	s.editor = testutil.CreateTestUser(s.T(), s.testDB.DB, "editor", "editor123", models.RoleEditor)
	s.viewer = testutil.CreateTestUser(s.T(), s.testDB.DB, "viewer", "viewer123", models.RoleViewer)
}

func (s *APITestSuite) TearDownTest() {
	s.broker.Close()
	s.journal.Close()
	s.testRedis.Teardown(s.T())
}

func (s *APITestSuite) newRouter(cfg *config.Config) *gin.Engine {
	var err error
	s.images, err = storage.NewImageStore(cfg.UploadDir, cfg.UploadURLPrefix, cfg.MaxUploadSize)
	s.Require().NoError(err)
	s.journal, err = wal.NewWAL(filepath.Join(filepath.Dir(cfg.UploadDir), "journal.log"))
	s.Require().NoError(err)
	s.broker = broker.NewLocalBroker()

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	userRepo := repository.NewUserRepository(s.testDB.DB)
	heroRepo := repository.NewHeroRepository(s.testDB.DB)
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry)

	return router.New(router.Deps{
		Config:      cfg,
		DB:          s.testDB.DB,
		Redis:       s.testRedis.Client,
		Registry:    registry,
		Metrics:     m,
		Broker:      s.broker,
		AuthService: authService,
		UserService: service.NewUserService(userRepo, authService),
		HeroService: service.NewHeroService(heroRepo, s.images, s.journal, s.broker, m),
	})
}

func (s *APITestSuite) token(u *models.User) string {
	return testutil.Token(s.T(), u, testSecret)
}

func (s *APITestSuite) doJSON(method, target string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return testutil.Do(s.router, req, token)
}

func (s *APITestSuite) doForm(method, target string, fields map[string]string, image []byte, token string) *httptest.ResponseRecorder {
	body, contentType := testutil.MultipartBody(s.T(), fields, image)
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", contentType)
	return testutil.Do(s.router, req, token)
}

func (s *APITestSuite) decodeHeroes(w *httptest.ResponseRecorder) []models.Hero {
	var heroes []models.Hero
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &heroes), w.Body.String())
	return heroes
}

func (s *APITestSuite) decodeHero(w *httptest.ResponseRecorder) models.Hero {
	var hero models.Hero
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &hero), w.Body.String())
	return hero
}

func (s *APITestSuite) TestHealthAndMetrics() {
	w := s.doJSON(http.MethodGet, "/healthz", nil, "")
	s.Equal(http.StatusOK, w.Code)

	w = s.doJSON(http.MethodGet, "/metrics", nil, "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "superhero_http_requests_total")
}

func (s *APITestSuite) TestUnknownAPIRoute() {
	w := s.doJSON(http.MethodGet, "/api/nothing-here", nil, "")
	s.Equal(http.StatusNotFound, w.Code)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
