package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree for an hlskit origin.
type Config struct {
	// Manifest controls default values used when building master/media
	// playlists and serializing them back to M3U8 text.
	Manifest ManifestConfig `json:"manifest" yaml:"manifest"`

	// Live controls the LL-HLS live pipeline: segmentation, windowing,
	// and blocking-reload tuning.
	Live LiveConfig `json:"live" yaml:"live"`

	// Encryption controls full-segment and sample-level encryption.
	Encryption EncryptionConfig `json:"encryption" yaml:"encryption"`

	// DRM controls key rotation and DRM system fanout.
	DRM DRMConfig `json:"drm" yaml:"drm"`

	// Storage selects and configures the RecordingStorage backend.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Recorder controls simultaneous recording and live-to-VOD conversion.
	Recorder RecorderConfig `json:"recorder" yaml:"recorder"`

	// Pushers lists the outbound destinations media is republished to.
	Pushers []PusherConfig `json:"pushers" yaml:"pushers"`

	// Logging controls the structured logger.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ManifestConfig holds defaults applied when constructing playlists.
type ManifestConfig struct {
	// TargetDuration is the default EXT-X-TARGETDURATION, in seconds,
	// used when a media playlist doesn't derive one from its segments.
	TargetDuration int `json:"target_duration" yaml:"target_duration"`

	// PlaylistType is the default EXT-X-PLAYLIST-TYPE ("", "EVENT", "VOD").
	PlaylistType string `json:"playlist_type" yaml:"playlist_type"`

	// IndependentSegments sets EXT-X-INDEPENDENT-SEGMENTS on emitted
	// master playlists.
	IndependentSegments bool `json:"independent_segments" yaml:"independent_segments"`

	// Version pins EXT-X-VERSION; 0 means derive the minimum version
	// required by the tags actually present.
	Version int `json:"version" yaml:"version"`
}

// LiveConfig tunes the LL-HLS live manager and segmenter.
type LiveConfig struct {
	// WindowSize is the number of media segments retained in a sliding
	// live playlist before older segments are evicted.
	WindowSize int `json:"window_size" yaml:"window_size"`

	// PartTargetSeconds is the target duration of a single LL-HLS
	// partial segment (EXT-X-PART-INF:PART-TARGET).
	PartTargetSeconds float64 `json:"part_target_seconds" yaml:"part_target_seconds"`

	// SegmentTargetSeconds is the target duration of a complete segment.
	SegmentTargetSeconds float64 `json:"segment_target_seconds" yaml:"segment_target_seconds"`

	// CanBlockReload advertises EXT-X-SERVER-CONTROL:CAN-BLOCK-RELOAD.
	CanBlockReload bool `json:"can_block_reload" yaml:"can_block_reload"`

	// CanSkipUntilSeconds advertises EXT-X-SERVER-CONTROL:CAN-SKIP-UNTIL;
	// zero disables delta playlist support.
	CanSkipUntilSeconds float64 `json:"can_skip_until_seconds" yaml:"can_skip_until_seconds"`

	// HoldBackParts is the number of parts EXT-X-SERVER-CONTROL:PART-HOLD-BACK
	// requests a client hold back by: PART-HOLD-BACK is HoldBackParts times
	// PartTargetSeconds (3 when zero). HOLD-BACK is 3 times the target duration.
	HoldBackParts float64 `json:"hold_back_parts" yaml:"hold_back_parts"`

	// RingBufferCapacity bounds the number of in-flight frames the
	// segmenter will buffer before surfacing RingBufferOverflow.
	RingBufferCapacity int `json:"ring_buffer_capacity" yaml:"ring_buffer_capacity"`

	// BlockingRequestTimeout bounds how long AwaitPlaylist will wait for
	// a requested MSN/part to materialize before returning RequestTimeout.
	BlockingRequestTimeout time.Duration `json:"blocking_request_timeout" yaml:"blocking_request_timeout"`
}

// EncryptionConfig controls segment and sample encryption.
type EncryptionConfig struct {
	// Enabled turns on AES-128 encryption for emitted segments.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Mode selects the encryption scheme: "aes-128" (full segment CBC),
	// "sample-aes" (CBCS 1:9 pattern), or "sample-aes-ctr".
	Mode string `json:"mode" yaml:"mode"`

	// KeyRotation selects how often a new key is issued: "every_segment",
	// "every_n_segments", "interval", "manual", or "none".
	KeyRotation string `json:"key_rotation" yaml:"key_rotation"`

	// KeyRotationEveryN is used when KeyRotation is "every_n_segments".
	KeyRotationEveryN int `json:"key_rotation_every_n" yaml:"key_rotation_every_n"`

	// KeyRotationInterval is used when KeyRotation is "interval".
	KeyRotationInterval time.Duration `json:"key_rotation_interval" yaml:"key_rotation_interval"`

	// KeyURITemplate formats the EXT-X-KEY URI attribute; "{key_id}" is
	// substituted with the hex-encoded key identifier.
	KeyURITemplate string `json:"key_uri_template" yaml:"key_uri_template"`

	// Passphrase, if set, derives the content key deterministically
	// (via argon2) instead of generating a random one, for operators
	// who need to pre-provision the same key with an offline packager.
	Passphrase string `json:"passphrase" yaml:"passphrase"`

	// PassphraseSalt is the salt paired with Passphrase. Required when
	// Passphrase is set.
	PassphraseSalt string `json:"passphrase_salt" yaml:"passphrase_salt"`
}

// DRMConfig controls CENC key fanout to DRM systems.
type DRMConfig struct {
	// Enabled turns on pssh box emission in fMP4 init segments.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Systems lists the DRM systems to fan a CENC key out to: any of
	// "widevine", "playready", "fairplay".
	Systems []string `json:"systems" yaml:"systems"`
}

// StorageConfig selects and configures the RecordingStorage backend.
type StorageConfig struct {
	// Type is the storage backend: "local" or "s3".
	Type string `json:"type" yaml:"type"`

	// BasePath is the base path for local storage.
	BasePath string `json:"base_path" yaml:"base_path"`

	// S3 configures the S3-compatible backend.
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	// Endpoint is the S3 endpoint URL; empty uses AWS's default resolver.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// AccessKeyID is the S3 access key; empty uses the default credential chain.
	AccessKeyID string `json:"access_key_id" yaml:"access_key_id"`

	// SecretAccessKey is the S3 secret key.
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`

	// UsePathStyle forces path-style addressing, required by most
	// non-AWS S3-compatible services (MinIO, etc).
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	// MaxRetries is the number of upload retries before giving up.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryDelay is the base delay between upload retries.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// RecorderConfig controls simultaneous recording and VOD conversion.
type RecorderConfig struct {
	// Enabled turns on recording of the live stream alongside playback.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Format is the recording container: "fmp4" or "mpegts".
	Format string `json:"format" yaml:"format"`

	// RenumberSegments resets media sequence numbers to zero in the
	// finalized VOD playlist.
	RenumberSegments bool `json:"renumber_segments" yaml:"renumber_segments"`

	// IncludeDateTime emits EXT-X-PROGRAM-DATE-TIME on VOD segments.
	IncludeDateTime bool `json:"include_date_time" yaml:"include_date_time"`

	// PreserveDiscontinuities keeps EXT-X-DISCONTINUITY markers from the
	// live source in the finalized VOD playlist.
	PreserveDiscontinuities bool `json:"preserve_discontinuities" yaml:"preserve_discontinuities"`

	// FilenameTemplate formats segment filenames; "{index}" and
	// "{timestamp}" are substituted.
	FilenameTemplate string `json:"filename_template" yaml:"filename_template"`

	// InitSegmentFilename names the shared fMP4 initialization segment.
	InitSegmentFilename string `json:"init_segment_filename" yaml:"init_segment_filename"`

	// ChapterMinDuration merges auto-detected chapters shorter than this
	// into their neighbor.
	ChapterMinDuration time.Duration `json:"chapter_min_duration" yaml:"chapter_min_duration"`
}

// PusherConfig describes one outbound push destination.
type PusherConfig struct {
	// Name identifies this destination in logs and PushResult values.
	Name string `json:"name" yaml:"name"`

	// Type selects the transport: "http", "rtmp" or "icecast". The SDK
	// rejects "s3" here (S3 pushers are built with pusher.NewS3Pusher)
	// and has no SRT transport.
	Type string `json:"type" yaml:"type"`

	// URL is the destination endpoint (HTTP URL, rtmp:// URL, icecast mount, etc).
	URL string `json:"url" yaml:"url"`

	// MaxRetries bounds the retry/backoff loop before a push is given up on.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseBackoff is the initial backoff delay before exponential growth.
	BaseBackoff time.Duration `json:"base_backoff" yaml:"base_backoff"`

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// CircuitBreakerThreshold is the number of consecutive failures that
	// trips the circuit open for this destination.
	CircuitBreakerThreshold int `json:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`

	// CircuitBreakerCooldown is how long the circuit stays open before
	// allowing a half-open probe.
	CircuitBreakerCooldown time.Duration `json:"circuit_breaker_cooldown" yaml:"circuit_breaker_cooldown"`
}

// FailoverPolicy selects how MultiDestinationPusher interprets partial
// failure across its destinations.
type FailoverPolicy struct {
	// Mode is "all_or_nothing", "continue_on_failure", or "quorum".
	Mode string `json:"mode" yaml:"mode"`

	// QuorumCount is used when Mode is "quorum": the number of
	// destinations that must succeed for the push to be considered
	// successful overall.
	QuorumCount int `json:"quorum_count" yaml:"quorum_count"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// Format is the log format (json, text).
	Format string `json:"format" yaml:"format"`

	// OutputPath is the log output path ("stdout", "stderr", or a file path).
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// DefaultConfig returns a configuration with the spec's default tuning
// values filled in.
func DefaultConfig() *Config {
	return &Config{
		Manifest: ManifestConfig{
			TargetDuration:      6,
			PlaylistType:        "",
			IndependentSegments: true,
			Version:             0,
		},
		Live: LiveConfig{
			WindowSize:             6,
			PartTargetSeconds:      0.5,
			SegmentTargetSeconds:   6,
			CanBlockReload:         true,
			CanSkipUntilSeconds:    36,
			HoldBackParts:          3,
			RingBufferCapacity:     256,
			BlockingRequestTimeout: 15 * time.Second,
		},
		Encryption: EncryptionConfig{
			Enabled:             false,
			Mode:                "aes-128",
			KeyRotation:         "none",
			KeyRotationEveryN:   0,
			KeyRotationInterval: 0,
			KeyURITemplate:      "/keys/{key_id}.key",
		},
		DRM: DRMConfig{
			Enabled: false,
			Systems: nil,
		},
		Storage: StorageConfig{
			Type:     "local",
			BasePath: "./storage",
			S3: S3Config{
				MaxRetries: 3,
				RetryDelay: time.Second,
			},
		},
		Recorder: RecorderConfig{
			Enabled:                 false,
			Format:                  "fmp4",
			RenumberSegments:        true,
			IncludeDateTime:         true,
			PreserveDiscontinuities: true,
			FilenameTemplate:        "segment_{index}.m4s",
			InitSegmentFilename:     "init.mp4",
			ChapterMinDuration:      30 * time.Second,
		},
		Pushers: nil,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}

// Load loads configuration from a YAML file, applying defaults for any
// field the file doesn't set and then overriding from environment
// variables.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromEnv overrides config from environment variables.
func (c *Config) loadFromEnv() {
	if bucket := os.Getenv("HLSKIT_S3_BUCKET"); bucket != "" {
		c.Storage.S3.Bucket = bucket
	}
	if region := os.Getenv("HLSKIT_S3_REGION"); region != "" {
		c.Storage.S3.Region = region
	}
	if accessKey := os.Getenv("HLSKIT_S3_ACCESS_KEY_ID"); accessKey != "" {
		c.Storage.S3.AccessKeyID = accessKey
	}
	if secretKey := os.Getenv("HLSKIT_S3_SECRET_ACCESS_KEY"); secretKey != "" {
		c.Storage.S3.SecretAccessKey = secretKey
	}
	if level := os.Getenv("HLSKIT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
