// Package presence tracks which users are joined to a room.
package presence

import (
	"context"
	"time"

	"chat-engine/internal/env"
	"chat-engine/internal/models"
	"chat-engine/internal/roomstate"
)

// Config adjusts presence behaviour.
type Config struct {
	// DedupeByName makes a join replace any existing profile with the
	// same username. When false, repeated joins stack duplicate entries,
	// matching stores written by older clients.
	DedupeByName bool
}

// Manager performs join/leave/heartbeat for room membership.
type Manager struct {
	store   *roomstate.Store
	signals env.Signals
	cfg     Config
	now     func() time.Time
}

// NewManager builds a presence Manager.
func NewManager(store *roomstate.Store, signals env.Signals, cfg Config) *Manager {
	return &Manager{store: store, signals: signals, cfg: cfg, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Join adds the user to the room's presence set and returns the
// profile. Username uniqueness is not verified unless DedupeByName is
// set.
func (m *Manager) Join(ctx context.Context, room, username string) (models.UserProfile, error) {
	now := m.now().UTC().Format(time.RFC3339Nano)
	profile := models.UserProfile{
		Username:   username,
		JoinedAt:   now,
		LastActive: now,
		Device:     DetectDevice(m.signals.UserAgent()),
		Status:     models.StatusOnline,
	}

	err := m.store.UpdateProfiles(ctx, room, func(profiles []models.UserProfile) ([]models.UserProfile, bool) {
		if m.cfg.DedupeByName {
			kept := profiles[:0]
			for _, p := range profiles {
				if p.Username != username {
					kept = append(kept, p)
				}
			}
			profiles = kept
		}
		return append(profiles, profile), true
	})
	if err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

// Leave removes every presence entry matching username. When the room
// empties, its presence entry is deleted entirely.
func (m *Manager) Leave(ctx context.Context, room, username string) error {
	return m.store.UpdateProfiles(ctx, room, func(profiles []models.UserProfile) ([]models.UserProfile, bool) {
		kept := profiles[:0]
		for _, p := range profiles {
			if p.Username != username {
				kept = append(kept, p)
			}
		}
		return kept, true
	})
}

// Heartbeat bumps lastActive for every entry matching username.
func (m *Manager) Heartbeat(ctx context.Context, room, username string) error {
	now := m.now().UTC().Format(time.RFC3339Nano)
	return m.store.UpdateProfiles(ctx, room, func(profiles []models.UserProfile) ([]models.UserProfile, bool) {
		touched := false
		for i := range profiles {
			if profiles[i].Username == username {
				profiles[i].LastActive = now
				touched = true
			}
		}
		return profiles, touched
	})
}

// Members returns the room's current presence set.
func (m *Manager) Members(ctx context.Context, room string) ([]models.UserProfile, error) {
	return m.store.Profiles(ctx, room)
}
