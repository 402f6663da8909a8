// Package seed copies the bundled configuration into place on first run.
package seed

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/goletan/servicehost/internal/fsutil"
	"github.com/goletan/servicehost/internal/prefs"
	"go.uber.org/zap"
)

// FirstRunKey is the prefs key holding the first-run flag.
const FirstRunKey = "isFirstRun"

// Seeder performs the one-time config copy.
type Seeder struct {
	assets   fs.FS
	template string
	target   string
	flags    prefs.Store
	logger   *zap.Logger
}

// NewSeeder creates a Seeder copying template from assets to target.
func NewSeeder(assets fs.FS, template, target string, flags prefs.Store, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{
		assets:   assets,
		template: template,
		target:   target,
		flags:    flags,
		logger:   log.Named("seed"),
	}
}

// Target returns the path the template is copied to.
func (s *Seeder) Target() string {
	return s.target
}

// SeedIfFirstRun copies the template byte for byte when the first-run flag
// is unset, then marks the flag. A failed copy is logged and the flag is
// still advanced: a missing or partial config is repaired from the config
// editor rather than blocking startup. Only flag store errors are returned.
func (s *Seeder) SeedIfFirstRun(ctx context.Context) (bool, error) {
	firstRun, err := s.flags.GetBool(FirstRunKey, true)
	if err != nil {
		return false, fmt.Errorf("failed to read first-run flag: %w", err)
	}
	if !firstRun {
		s.logger.Debug("Configuration already seeded", zap.String("target", s.target))
		return false, nil
	}

	copied := false
	if n, err := s.copyTemplate(ctx); err != nil {
		s.logger.Error("Failed to seed configuration",
			zap.String("template", s.template),
			zap.String("target", s.target),
			zap.Error(err))
	} else {
		copied = true
		s.logger.Info("Seeded configuration",
			zap.String("target", s.target),
			zap.Int64("bytes", n))
	}

	if err := s.flags.SetBool(FirstRunKey, false); err != nil {
		return copied, fmt.Errorf("failed to write first-run flag: %w", err)
	}
	return copied, nil
}

func (s *Seeder) copyTemplate(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := s.assets.Open(s.template)
	if err != nil {
		return 0, fmt.Errorf("failed to open bundled %s: %w", s.template, err)
	}
	defer src.Close()

	return fsutil.WriteAtomic(s.target, src, 0o644)
}
