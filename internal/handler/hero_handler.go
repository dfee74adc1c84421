package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/superhero-manager/backend/internal/search"
	"github.com/superhero-manager/backend/internal/service"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

// multipart overhead allowed on top of the image size limit
const formOverhead = 1 << 20

type HeroHandler struct {
	heroService   *service.HeroService
	maxUploadSize int64
}

func NewHeroHandler(heroService *service.HeroService) *HeroHandler {
	return &HeroHandler{
		heroService:   heroService,
		maxUploadSize: heroService.MaxImageSize(),
	}
}

// List handles GET /api/heroes?search=&univers=&sort=
func (h *HeroHandler) List(c *gin.Context) {
	sortKey, err := search.ParseSortKey(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": gin.H{"sort": err.Error()},
		})
		return
	}

	heroes, err := h.heroService.ListHeroes(c.Request.Context(), search.Query{
		Search:   c.Query("search"),
		Universe: c.Query("univers"),
		Sort:     sortKey,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, heroes)
}

// Get handles GET /api/heroes/:id
func (h *HeroHandler) Get(c *gin.Context) {
	hero, err := h.heroService.GetHero(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hero)
}

// Create handles POST /api/heroes (multipart)
func (h *HeroHandler) Create(c *gin.Context) {
	in, cleanup, err := h.bindHeroForm(c)
	if err != nil {
		h.formError(c, err)
		return
	}
	defer cleanup()

	hero, err := h.heroService.CreateHero(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Log.Info("Hero created via API",
		zap.String("hero_id", hero.ID.String()),
		zap.String("user_id", actorID(c)),
	)
	c.JSON(http.StatusCreated, hero)
}

// Update handles PUT /api/heroes/:id (multipart)
func (h *HeroHandler) Update(c *gin.Context) {
	in, cleanup, err := h.bindHeroForm(c)
	if err != nil {
		h.formError(c, err)
		return
	}
	defer cleanup()

	hero, err := h.heroService.UpdateHero(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hero)
}

// Delete handles DELETE /api/heroes/:id
func (h *HeroHandler) Delete(c *gin.Context) {
	if err := h.heroService.DeleteHero(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	logger.Log.Info("Hero deleted via API",
		zap.String("hero_id", c.Param("id")),
		zap.String("user_id", actorID(c)),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Hero deleted successfully"})
}

// bindHeroForm reads the multipart body into a HeroInput. Only fields
// present in the form are set. The returned cleanup closes the image.
func (h *HeroHandler) bindHeroForm(c *gin.Context) (service.HeroInput, func(), error) {
	var in service.HeroInput
	noop := func() {}

	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+formOverhead)
	}
	form, err := c.MultipartForm()
	if err != nil {
		return in, noop, err
	}

	value := func(key string) *string {
		if vs, ok := form.Value[key]; ok && len(vs) > 0 {
			return &vs[0]
		}
		return nil
	}
	in.Name = value("nom")
	in.Alias = value("alias")
	in.Universe = value("univers")
	in.Description = value("description")
	in.Origin = value("origine")
	in.FirstAppearance = value("premiereApparition")
	in.Powers = value("pouvoirs")
	in.Stats = value("stats")

	files := form.File["image"]
	if len(files) == 0 {
		return in, noop, nil
	}
	if h.maxUploadSize > 0 && files[0].Size > h.maxUploadSize {
		return in, noop, errUploadTooLarge
	}

	var f multipart.File
	if f, err = files[0].Open(); err != nil {
		return in, noop, err
	}
	in.Image = f
	return in, func() { _ = f.Close() }, nil
}

var errUploadTooLarge = errors.New("uploaded image is too large")

func (h *HeroHandler) formError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.Is(err, errUploadTooLarge) || errors.As(err, &maxBytesErr) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "uploaded image is too large"})
		return
	}
	badRequest(c, err)
}
