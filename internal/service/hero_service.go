package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/superhero-manager/backend/internal/broker"
	"github.com/superhero-manager/backend/internal/metrics"
	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/repository"
	"github.com/superhero-manager/backend/internal/search"
	"github.com/superhero-manager/backend/internal/storage"
	"github.com/superhero-manager/backend/internal/wal"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrHeroNotFound = errors.New("hero not found")

// HeroService couples hero records with their image files. Every file
// that may need undoing is journaled before the database write and the
// entry is cleared once the outcome is known.
type HeroService struct {
	heroRepo *repository.HeroRepository
	images   *storage.ImageStore
	journal  *wal.WAL
	broker   broker.HeroBroker // optional
	metrics  *metrics.Metrics  // optional
}

func NewHeroService(
	heroRepo *repository.HeroRepository,
	images *storage.ImageStore,
	journal *wal.WAL,
	broker broker.HeroBroker,
	m *metrics.Metrics,
) *HeroService {
	return &HeroService{
		heroRepo: heroRepo,
		images:   images,
		journal:  journal,
		broker:   broker,
		metrics:  m,
	}
}

// MaxImageSize is the largest upload the image store accepts
func (s *HeroService) MaxImageSize() int64 {
	return s.images.MaxSize()
}

// ListHeroes loads every hero and applies search, universe filter and sort
func (s *HeroService) ListHeroes(ctx context.Context, q search.Query) ([]models.Hero, error) {
	start := time.Now()

	heroes, err := s.heroRepo.GetAllHeroes(ctx)
	if err != nil {
		logger.Log.Error("Failed to load heroes", zap.Error(err))
		return nil, err
	}

	result := search.Apply(heroes, q)

	logger.Log.Debug("Listed heroes",
		zap.String("search", q.Search),
		zap.String("universe", q.Universe),
		zap.String("sort", string(q.Sort)),
		zap.Int("total", len(heroes)),
		zap.Int("returned", len(result)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// GetHero returns ErrHeroNotFound for unknown or malformed ids
func (s *HeroService) GetHero(ctx context.Context, id string) (*models.Hero, error) {
	hid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrHeroNotFound
	}

	hero, err := s.heroRepo.GetHeroByID(ctx, hid)
	if err != nil {
		logger.Log.Error("Failed to get hero",
			zap.String("hero_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	if hero == nil {
		return nil, ErrHeroNotFound
	}
	return hero, nil
}

func (s *HeroService) CreateHero(ctx context.Context, in HeroInput) (hero *models.Hero, err error) {
	start := time.Now()
	defer func() { s.metrics.HeroOp("create", err) }()

	hero = &models.Hero{ID: uuid.New()}
	if err := in.apply(hero, true); err != nil {
		logger.Log.Warn("Hero validation failed", zap.Error(err))
		return nil, err
	}

	var upload *wal.Entry
	if in.Image != nil {
		ref, entry, err := s.stageImage(in.Image, hero.ID)
		if err != nil {
			return nil, err
		}
		hero.Image = ref
		upload = entry
	}

	if err := s.heroRepo.CreateHero(ctx, hero); err != nil {
		logger.Log.Error("Failed to create hero",
			zap.String("hero_id", hero.ID.String()),
			zap.Error(err),
		)
		if upload != nil {
			s.discard(*upload)
		}
		return nil, err
	}

	if upload != nil {
		s.resolve(upload.ID)
	}

	logger.Log.Info("Hero created",
		zap.String("hero_id", hero.ID.String()),
		zap.String("nom", hero.Name),
		zap.Bool("has_image", hero.Image != ""),
		zap.Duration("duration", time.Since(start)),
	)
	s.publish(ctx, broker.HeroCreated, hero.ID, hero)
	return hero, nil
}

// UpdateHero applies the provided fields. A new image replaces the old
// one; the old file goes only after the update has committed.
func (s *HeroService) UpdateHero(ctx context.Context, id string, in HeroInput) (hero *models.Hero, err error) {
	start := time.Now()
	defer func() { s.metrics.HeroOp("update", err) }()

	hero, err = s.GetHero(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := in.apply(hero, false); err != nil {
		logger.Log.Warn("Hero validation failed",
			zap.String("hero_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	oldRef := hero.Image
	var upload, obsolete *wal.Entry
	if in.Image != nil {
		ref, entry, err := s.stageImage(in.Image, hero.ID)
		if err != nil {
			return nil, err
		}
		hero.Image = ref
		upload = entry

		if oldRef != "" && s.images.Owns(oldRef) {
			e := wal.NewEntry(wal.KindObsolete, oldRef, hero.ID.String())
			if err := s.journal.Write(e); err != nil {
				logger.Log.Error("Failed to journal obsolete image", zap.Error(err))
				s.discard(*upload)
				return nil, err
			}
			obsolete = &e
		}
	}

	if err := s.heroRepo.UpdateHero(ctx, hero); err != nil {
		if upload != nil {
			s.discard(*upload)
		}
		if obsolete != nil {
			s.resolve(obsolete.ID)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHeroNotFound
		}
		logger.Log.Error("Failed to update hero",
			zap.String("hero_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	if upload != nil {
		s.resolve(upload.ID)
	}
	if obsolete != nil {
		s.removeUnreferenced(ctx, *obsolete)
	}

	logger.Log.Info("Hero updated",
		zap.String("hero_id", id),
		zap.Bool("image_replaced", upload != nil),
		zap.Duration("duration", time.Since(start)),
	)
	s.publish(ctx, broker.HeroUpdated, hero.ID, hero)
	return hero, nil
}

// DeleteHero removes the record, then its image. A missing file is not an error.
func (s *HeroService) DeleteHero(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.metrics.HeroOp("delete", err) }()

	hero, err := s.GetHero(ctx, id)
	if err != nil {
		return err
	}

	var obsolete *wal.Entry
	if hero.Image != "" && s.images.Owns(hero.Image) {
		e := wal.NewEntry(wal.KindObsolete, hero.Image, hero.ID.String())
		if err := s.journal.Write(e); err != nil {
			logger.Log.Error("Failed to journal obsolete image", zap.Error(err))
			return err
		}
		obsolete = &e
	}

	deleted, err := s.heroRepo.DeleteHero(ctx, hero.ID)
	if err != nil || !deleted {
		if obsolete != nil {
			s.resolve(obsolete.ID)
		}
		if err != nil {
			logger.Log.Error("Failed to delete hero",
				zap.String("hero_id", id),
				zap.Error(err),
			)
			return err
		}
		return ErrHeroNotFound
	}

	if obsolete != nil {
		s.removeUnreferenced(ctx, *obsolete)
	}

	logger.Log.Info("Hero deleted",
		zap.String("hero_id", id),
		zap.Duration("duration", time.Since(start)),
	)
	s.publish(ctx, broker.HeroDeleted, hero.ID, nil)
	return nil
}

// Recover resolves journal entries older than minAge. A file no hero
// references is deleted, whatever the entry kind. Safe to run repeatedly.
func (s *HeroService) Recover(ctx context.Context, minAge time.Duration) (int, error) {
	start := time.Now()

	entries, err := s.journal.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	refs, err := s.heroRepo.ImageRefs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-minAge)
	var resolved []string
	removed := 0
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			continue
		}
		if !refs[e.Ref] {
			if err := s.images.Remove(e.Ref); err != nil {
				logger.Log.Warn("Recovery could not remove image",
					zap.String("ref", e.Ref),
					zap.Error(err),
				)
				continue
			}
			removed++
			s.metrics.ImageRemoved()
		}
		resolved = append(resolved, e.ID)
	}

	if err := s.journal.Cleanup(resolved...); err != nil {
		return 0, err
	}
	s.metrics.Recovered(len(resolved))

	logger.Log.Info("Image journal recovered",
		zap.Int("pending", len(entries)),
		zap.Int("resolved", len(resolved)),
		zap.Int("files_removed", removed),
		zap.Duration("duration", time.Since(start)),
	)
	return len(resolved), nil
}

// SweepOrphans deletes stored images that no hero and no pending journal
// entry references, skipping files younger than grace.
func (s *HeroService) SweepOrphans(ctx context.Context, grace time.Duration) (int, error) {
	start := time.Now()

	images, err := s.images.List()
	if err != nil {
		return 0, err
	}
	refs, err := s.heroRepo.ImageRefs(ctx)
	if err != nil {
		return 0, err
	}
	pending, err := s.journal.ReadAll()
	if err != nil {
		return 0, err
	}
	for _, e := range pending {
		refs[e.Ref] = true
	}

	cutoff := time.Now().Add(-grace)
	removed := 0
	for _, img := range images {
		if refs[img.Ref] || img.ModTime.After(cutoff) {
			continue
		}
		if err := s.images.Remove(img.Ref); err != nil {
			logger.Log.Warn("Sweeper could not remove image",
				zap.String("ref", img.Ref),
				zap.Error(err),
			)
			continue
		}
		removed++
		s.metrics.ImageRemoved()
	}

	logger.Log.Info("Orphan image sweep completed",
		zap.Int("stored", len(images)),
		zap.Int("removed", removed),
		zap.Duration("duration", time.Since(start)),
	)
	return removed, nil
}

// stageImage stores the upload and journals it before any database write
func (s *HeroService) stageImage(r io.Reader, heroID uuid.UUID) (string, *wal.Entry, error) {
	ref, err := s.images.Save(r)
	if err != nil {
		if errors.Is(err, storage.ErrNotAnImage) || errors.Is(err, storage.ErrEmptyUpload) {
			return "", nil, fieldError("image", err.Error())
		}
		return "", nil, err
	}

	entry := wal.NewEntry(wal.KindUpload, ref, heroID.String())
	if err := s.journal.Write(entry); err != nil {
		logger.Log.Error("Failed to journal upload", zap.Error(err))
		s.images.Remove(ref)
		return "", nil, err
	}
	return ref, &entry, nil
}

// discard undoes a staged upload after a failed write
func (s *HeroService) discard(e wal.Entry) {
	if err := s.images.Remove(e.Ref); err != nil {
		logger.Log.Warn("Failed to discard staged image, left for recovery",
			zap.String("ref", e.Ref),
			zap.Error(err),
		)
		return
	}
	s.metrics.ImageRemoved()
	s.resolve(e.ID)
}

// removeUnreferenced deletes an obsolete file unless another hero still uses it
func (s *HeroService) removeUnreferenced(ctx context.Context, e wal.Entry) {
	used, err := s.heroRepo.IsImageReferenced(ctx, e.Ref)
	if err != nil {
		logger.Log.Warn("Could not check image references, left for recovery",
			zap.String("ref", e.Ref),
			zap.Error(err),
		)
		return
	}
	if !used {
		if err := s.images.Remove(e.Ref); err != nil {
			logger.Log.Warn("Failed to remove obsolete image, left for recovery",
				zap.String("ref", e.Ref),
				zap.Error(err),
			)
			return
		}
		s.metrics.ImageRemoved()
	}
	s.resolve(e.ID)
}

func (s *HeroService) resolve(ids ...string) {
	if err := s.journal.Cleanup(ids...); err != nil {
		logger.Log.Warn("Failed to clear journal entries, recovery will retry",
			zap.Strings("entry_ids", ids),
			zap.Error(err),
		)
	}
}

// publish is best-effort; a broker outage never fails a committed write
func (s *HeroService) publish(ctx context.Context, t broker.EventType, id uuid.UUID, hero *models.Hero) {
	if s.broker == nil {
		return
	}
	event := broker.HeroEvent{Type: t, HeroID: id.String(), Hero: hero, At: time.Now().UTC()}
	if err := s.broker.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Log.Warn("Failed to publish hero event",
			zap.String("hero_id", id.String()),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}
