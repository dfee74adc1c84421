// Package broker fans hero change events out to live subscribers.
package broker

import (
	"context"
	"time"

	"github.com/superhero-manager/backend/internal/models"
)

type EventType string

const (
	HeroCreated EventType = "hero_created"
	HeroUpdated EventType = "hero_updated"
	HeroDeleted EventType = "hero_deleted"
)

// HeroEvent describes one committed hero change. Hero is nil for deletes.
type HeroEvent struct {
	Type   EventType    `json:"type"`
	HeroID string       `json:"heroId"`
	Hero   *models.Hero `json:"hero,omitempty"`
	At     time.Time    `json:"at"`
}

// HeroBroker publishes hero events and hands them to subscribers.
// Subscription channels close when the subscribing context ends or the
// broker is closed.
type HeroBroker interface {
	Publish(ctx context.Context, event HeroEvent) error
	Subscribe(ctx context.Context) (<-chan HeroEvent, error)
	Close() error
}

// subscriberBuffer bounds how far a slow subscriber may lag before events are dropped for it
const subscriberBuffer = 64
