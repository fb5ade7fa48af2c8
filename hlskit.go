// Package hlskit wires the manifest, parsing, validation, container,
// encryption, live-pipeline, publishing, pushing, recording, and DRM
// packages into one SDK entry point, the way the teacher's zenlive.go
// builds an SDK struct around a Config and a set of per-concern
// managers rather than exposing each package independently.
package hlskit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atelier-socle/hlskit/pkg/config"
	"github.com/atelier-socle/hlskit/pkg/crypto"
	"github.com/atelier-socle/hlskit/pkg/drm"
	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/llhls"
	"github.com/atelier-socle/hlskit/pkg/logger"
	"github.com/atelier-socle/hlskit/pkg/publish"
	"github.com/atelier-socle/hlskit/pkg/pusher"
	"github.com/atelier-socle/hlskit/pkg/recorder"
	"github.com/atelier-socle/hlskit/pkg/storage"
)

// SDK is the top-level handle for one live rendition's packaging
// pipeline: a publisher driving an llhls.Manager, an optional
// simultaneous recorder, an optional DRM key manager, and the set of
// configured push destinations.
type SDK struct {
	cfg    *config.Config
	logger logger.Logger

	mu        sync.RWMutex
	publisher *publish.Publisher
	recorder  *recorder.SimultaneousRecorder
	keyMgr    *drm.SessionKeyManager
	pushers   []pusher.Pusher
	isRunning bool
}

// New creates an SDK from cfg. A nil cfg uses config.DefaultConfig().
func New(cfg *config.Config) (*SDK, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	log := logger.NewDefaultLogger(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	sdk := &SDK{cfg: cfg, logger: log}

	if cfg.Encryption.Enabled {
		kr, err := keyRotationFromConfig(cfg.Encryption)
		if err != nil {
			return nil, err
		}
		sdk.keyMgr = drm.NewSessionKeyManager(cfg.Encryption.KeyURITemplate, kr)
		if cfg.Encryption.Passphrase != "" {
			sdk.keyMgr.GenerateKeyFromPassphrase("key-0", cfg.Encryption.Passphrase, []byte(cfg.Encryption.PassphraseSalt))
		}
	}

	if len(cfg.Pushers) > 0 {
		pushers, err := buildPushers(cfg.Pushers, log)
		if err != nil {
			return nil, err
		}
		sdk.pushers = pushers
	}

	return sdk, nil
}

func keyRotationFromConfig(ec config.EncryptionConfig) (drm.KeyRotationPolicy, error) {
	switch ec.KeyRotation {
	case "every_segment":
		return drm.EverySegment(), nil
	case "every_n_segments":
		return drm.EveryNSegments(ec.KeyRotationEveryN), nil
	case "interval":
		return drm.Interval(ec.KeyRotationInterval), nil
	case "manual":
		return drm.Manual(), nil
	case "", "none":
		return drm.None(), nil
	default:
		return drm.KeyRotationPolicy{}, herr.NewInvalidConfigError("encryption.key_rotation", fmt.Sprintf("unknown key rotation mode %q", ec.KeyRotation))
	}
}

func buildPushers(cfgs []config.PusherConfig, log logger.Logger) ([]pusher.Pusher, error) {
	out := make([]pusher.Pusher, 0, len(cfgs))
	for _, pc := range cfgs {
		policy := pusher.RetryPolicy{
			MaxRetries:              pc.MaxRetries,
			BaseBackoff:             pc.BaseBackoff,
			MaxBackoff:              pc.MaxBackoff,
			CircuitBreakerThreshold: pc.CircuitBreakerThreshold,
			CircuitBreakerCooldown:  pc.CircuitBreakerCooldown,
		}
		var p pusher.Pusher
		switch pc.Type {
		case "http":
			p = pusher.NewHTTPPusher(pc.Name, pc.URL, nil, 10*time.Second)
		case "s3":
			return nil, herr.NewInvalidConfigError("pushers", "s3 pusher requires storage.StorageConfig; construct with pusher.NewS3Pusher directly")
		case "rtmp":
			p = pusher.NewRTMPPusher(pc.Name, pc.URL, "live", pc.Name, 10*time.Second)
		case "icecast":
			p = pusher.NewIcecastPusher(pc.Name, pc.URL, "", "", 0)
		default:
			return nil, herr.NewInvalidConfigError("pushers", fmt.Sprintf("unknown pusher type %q", pc.Type))
		}
		out = append(out, pusher.NewRetryingPusher(p, policy))
	}
	return out, nil
}

// StartLive begins a live rendition's LL-HLS publishing pipeline.
func (s *SDK) StartLive(mode publish.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return herr.New(herr.ErrCodeUnknown, "sdk already running")
	}

	llcfg := llhls.Config{
		TargetDuration:      int(s.cfg.Live.SegmentTargetSeconds + 0.999),
		PartTargetSeconds:   s.cfg.Live.PartTargetSeconds,
		WindowSize:          s.cfg.Live.WindowSize,
		HoldBackParts:       s.cfg.Live.HoldBackParts,
		CanSkipUntilSeconds: s.cfg.Live.CanSkipUntilSeconds,
		RequestTimeout:      s.cfg.Live.BlockingRequestTimeout,
	}
	s.publisher = publish.New(mode, llcfg)

	if s.cfg.Recorder.Enabled {
		backend, err := s.openStorageBackend()
		if err != nil {
			return err
		}
		s.recorder = recorder.New(recorder.Config{
			Directory:           s.cfg.Storage.BasePath,
			PlaylistFilename:    "playlist.m3u8",
			InitSegmentFilename: s.cfg.Recorder.InitSegmentFilename,
			TargetDuration:      s.cfg.Manifest.TargetDuration,
			IncrementalPlaylist: true,
		}, storage.NewRecordingStorage(backend))
		if err := s.recorder.Start(context.Background()); err != nil {
			return err
		}
	}

	s.isRunning = true
	s.logger.Info("hlskit live pipeline started")
	return nil
}

func (s *SDK) openStorageBackend() (storage.Storage, error) {
	cfg := storage.StorageConfig{
		Type:            storage.StorageType(s.cfg.Storage.Type),
		BasePath:        s.cfg.Storage.BasePath,
		Endpoint:        s.cfg.Storage.S3.Endpoint,
		Region:          s.cfg.Storage.S3.Region,
		Bucket:          s.cfg.Storage.S3.Bucket,
		AccessKeyID:     s.cfg.Storage.S3.AccessKeyID,
		SecretAccessKey: s.cfg.Storage.S3.SecretAccessKey,
		MaxRetries:      s.cfg.Storage.S3.MaxRetries,
		RetryDelay:      s.cfg.Storage.S3.RetryDelay,
	}
	switch cfg.Type {
	case storage.StorageTypeS3:
		return storage.NewS3Storage(cfg, s.logger)
	default:
		return storage.NewLocalStorage(cfg, s.logger)
	}
}

// Publisher exposes the active rendition's publisher, valid once
// StartLive has run.
func (s *SDK) Publisher() *publish.Publisher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publisher
}

// Recorder exposes the active simultaneous recorder, nil unless
// Recorder.Enabled was set.
func (s *SDK) Recorder() *recorder.SimultaneousRecorder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recorder
}

// Pushers exposes the configured push destinations.
func (s *SDK) Pushers() []pusher.Pusher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushers
}

// KeyManager exposes the session's DRM key manager, nil unless
// Encryption.Enabled was set.
func (s *SDK) KeyManager() *drm.SessionKeyManager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keyMgr
}

// Stop finalizes the live rendition: ends the publisher's playlist and
// stops the recorder if one is running.
func (s *SDK) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return herr.New(herr.ErrCodeUnknown, "sdk is not running")
	}

	var firstErr error
	if s.publisher != nil {
		if err := s.publisher.Finalize(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.publisher.Close()
	}
	if s.recorder != nil {
		if err := s.recorder.Stop(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, p := range s.pushers {
		_ = p.Disconnect()
	}

	s.isRunning = false
	s.logger.Info("hlskit live pipeline stopped")
	return firstErr
}

// DefaultAESKeyManager builds a crypto.KeyManager from cfg.Encryption,
// independent of the DRM session manager, for callers that only need
// AES-128/SAMPLE-AES key issuance without multi-system pssh fanout.
func DefaultAESKeyManager(ec config.EncryptionConfig) (*crypto.KeyManager, error) {
	kr, err := keyRotationFromConfig(ec)
	if err != nil {
		return nil, err
	}
	return drm.NewSessionKeyManager(ec.KeyURITemplate, kr).CryptoManager(), nil
}
