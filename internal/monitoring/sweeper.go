package monitoring

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/scribe-blog/scribe-be/internal/images"
	"github.com/scribe-blog/scribe-be/internal/services"
)

// orphanGrace is how long an unreferenced file is left alone. An upload is
// on disk before its profile row commits, so very young files are not
// orphans yet.
const orphanGrace = time.Hour

// Sweeper periodically removes upload-directory files no profile
// references. The default avatar is never touched.
type Sweeper struct {
	profiles services.ProfileServiceProvider
	events   services.EventServiceProvider
	store    *images.Store
	schedule cron.Schedule
	done     chan bool
}

// NewSweeper creates a sweeper from a standard cron expression.
func NewSweeper(profiles services.ProfileServiceProvider, events services.EventServiceProvider, store *images.Store, cronExpr string) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		profiles: profiles,
		events:   events,
		store:    store,
		schedule: schedule,
		done:     make(chan bool),
	}, nil
}

// Run starts the sweeper loop. It blocks until Stop is called.
func (s *Sweeper) Run() {
	log.Info().Msg("Starting upload sweeper")
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.done:
			timer.Stop()
			log.Info().Msg("Stopping upload sweeper")
			return
		case <-timer.C:
			s.Sweep()
		}
	}
}

// Stop halts the sweeper.
func (s *Sweeper) Stop() {
	s.done <- true
}

// Sweep performs a single pass over the upload directory.
func (s *Sweeper) Sweep() {
	referenced, err := s.profiles.ReferencedImages()
	if err != nil {
		log.Error().Err(err).Msg("Sweeper: failed to query referenced images")
		return
	}

	entries, err := os.ReadDir(s.store.Path(""))
	if err != nil {
		log.Error().Err(err).Msg("Sweeper: failed to read upload directory")
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := filepath.Base(entry.Name())
		if referenced[name] {
			continue
		}

		info, err := entry.Info()
		if err != nil || time.Since(info.ModTime()) < orphanGrace {
			continue
		}

		if err := s.store.Cleanup(name); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Sweeper: failed to remove orphan")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Sweeper: removed orphaned uploads")
		s.events.CreateEvent("uploads.sweep", "info", "Removed orphaned upload files", nil)
	}
}
