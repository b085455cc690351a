package config

import (
	"sync"
	"time"
)

// Settings is the live configuration consumed by the scheduler and network
// monitor. Changes take effect for the next scheduling decision, never for
// in-flight transfers.
type Settings struct {
	mu  sync.RWMutex
	cfg Config
}

func NewSettings(cfg Config) *Settings {
	return &Settings{cfg: cfg}
}

// Snapshot returns a copy of the current configuration.
func (s *Settings) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.cfg
	cfg.BlockedExtensions = append([]string(nil), s.cfg.BlockedExtensions...)

	return cfg
}

// Patch is a partial settings update; nil fields are left untouched.
type Patch struct {
	MaxConcurrentDownloads *int
	RetryAttempts          *int
	RetryDelay             *time.Duration
	AutoResumeOnRestore    *bool
	MaxFileSize            *int64
	BlockedExtensions      []string
}

// Apply overlays the patch and returns the new snapshot.
func (s *Settings) Apply(p Patch) Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.MaxConcurrentDownloads != nil && *p.MaxConcurrentDownloads > 0 {
		s.cfg.MaxConcurrentDownloads = *p.MaxConcurrentDownloads
	}
	if p.RetryAttempts != nil && *p.RetryAttempts >= 0 {
		s.cfg.RetryAttempts = *p.RetryAttempts
	}
	if p.RetryDelay != nil && *p.RetryDelay > 0 {
		s.cfg.RetryDelay = *p.RetryDelay
	}
	if p.AutoResumeOnRestore != nil {
		s.cfg.AutoResumeOnRestore = *p.AutoResumeOnRestore
	}
	if p.MaxFileSize != nil && *p.MaxFileSize >= 0 {
		s.cfg.MaxFileSize = *p.MaxFileSize
	}
	if p.BlockedExtensions != nil {
		s.cfg.BlockedExtensions = append([]string(nil), p.BlockedExtensions...)
	}

	return s.cfg
}

func (s *Settings) MaxConcurrent() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg.MaxConcurrentDownloads
}

func (s *Settings) RetryPolicy() (attempts int, delay time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg.RetryAttempts, s.cfg.RetryDelay
}

func (s *Settings) AutoResume() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg.AutoResumeOnRestore
}
