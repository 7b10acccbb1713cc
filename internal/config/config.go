// Package config loads pipeline configuration from defaults, an optional TOML
// file and the environment, and hands it to components as an explicit struct.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultIndex     = "legal-docs-ua"
	DefaultNamespace = "default"

	DefaultChunkSize    = 2000
	DefaultMinChunkSize = 100

	DefaultUpsertBatchSize = 96
	DefaultDeleteBatchSize = 1000
	DefaultFetchBatchSize  = 100

	DefaultVerifyDelay = 2 * time.Second

	// FileName is the optional per-directory config file.
	FileName = "docsync.toml"
)

// Config carries everything the pipeline components need. There are no
// process-wide mutable settings; constructors receive this struct.
type Config struct {
	APIKey    string
	Index     string
	Namespace string

	BaseDir           string
	SourceDir         string
	StagingDir        string
	ArchiveDir        string
	ArchivedSourceDir string
	LogsDir           string
	TrackingFile      string

	ChunkSize    int
	MinChunkSize int

	UpsertBatchSize int
	DeleteBatchSize int
	FetchBatchSize  int

	// VerifyDelay is the fixed wait before the coarse post-upload
	// verification query.
	VerifyDelay time.Duration
}

// Default returns the configuration rooted at baseDir with all defaults set.
func Default(baseDir string) Config {
	return Config{
		Index:             DefaultIndex,
		Namespace:         DefaultNamespace,
		BaseDir:           baseDir,
		SourceDir:         filepath.Join(baseDir, "source_docs"),
		StagingDir:        filepath.Join(baseDir, "chunks"),
		ArchiveDir:        filepath.Join(baseDir, "archived_chunks"),
		ArchivedSourceDir: filepath.Join(baseDir, "archived_source_docs"),
		LogsDir:           filepath.Join(baseDir, "logs"),
		TrackingFile:      filepath.Join(baseDir, "tracking.json"),
		ChunkSize:         DefaultChunkSize,
		MinChunkSize:      DefaultMinChunkSize,
		UpsertBatchSize:   DefaultUpsertBatchSize,
		DeleteBatchSize:   DefaultDeleteBatchSize,
		FetchBatchSize:    DefaultFetchBatchSize,
		VerifyDelay:       DefaultVerifyDelay,
	}
}

// fileConfig is the optional TOML overlay. Pointer fields distinguish "unset"
// from zero values.
type fileConfig struct {
	Index     *string `toml:"index"`
	Namespace *string `toml:"namespace"`

	SourceDir         *string `toml:"source_dir"`
	StagingDir        *string `toml:"staging_dir"`
	ArchiveDir        *string `toml:"archive_dir"`
	ArchivedSourceDir *string `toml:"archived_source_dir"`
	LogsDir           *string `toml:"logs_dir"`
	TrackingFile      *string `toml:"tracking_file"`

	Chunking struct {
		ChunkSize    *int `toml:"chunk_size"`
		MinChunkSize *int `toml:"min_chunk_size"`
	} `toml:"chunking"`

	Upload struct {
		UpsertBatchSize    *int `toml:"upsert_batch_size"`
		DeleteBatchSize    *int `toml:"delete_batch_size"`
		FetchBatchSize     *int `toml:"fetch_batch_size"`
		VerifyDelaySeconds *int `toml:"verify_delay_seconds"`
	} `toml:"upload"`
}

// Load builds the configuration for baseDir: defaults, then docsync.toml in
// baseDir when present, then the environment. A .env file in baseDir is
// loaded first so deployments keeping credentials in a .env file work as is.
func Load(baseDir string) (Config, error) {
	if baseDir == "" {
		baseDir = "."
	}

	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load(filepath.Join(baseDir, ".env"))

	cfg := Default(baseDir)

	tomlPath := filepath.Join(baseDir, FileName)
	if _, err := os.Stat(tomlPath); err == nil {
		var fc fileConfig
		if _, err := toml.DecodeFile(tomlPath, &fc); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", FileName, err)
		}
		applyFile(&cfg, baseDir, fc)
	}

	if v := os.Getenv("PINECONE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("PINECONE_INDEX"); v != "" {
		cfg.Index = v
	}
	if v := os.Getenv("PINECONE_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	return cfg, nil
}

func applyFile(cfg *Config, baseDir string, fc fileConfig) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
			if !filepath.IsAbs(*dst) {
				*dst = filepath.Join(baseDir, *dst)
			}
		}
	}

	if fc.Index != nil {
		cfg.Index = *fc.Index
	}
	if fc.Namespace != nil {
		cfg.Namespace = *fc.Namespace
	}
	setString(&cfg.SourceDir, fc.SourceDir)
	setString(&cfg.StagingDir, fc.StagingDir)
	setString(&cfg.ArchiveDir, fc.ArchiveDir)
	setString(&cfg.ArchivedSourceDir, fc.ArchivedSourceDir)
	setString(&cfg.LogsDir, fc.LogsDir)
	setString(&cfg.TrackingFile, fc.TrackingFile)

	if fc.Chunking.ChunkSize != nil {
		cfg.ChunkSize = *fc.Chunking.ChunkSize
	}
	if fc.Chunking.MinChunkSize != nil {
		cfg.MinChunkSize = *fc.Chunking.MinChunkSize
	}
	if fc.Upload.UpsertBatchSize != nil {
		cfg.UpsertBatchSize = *fc.Upload.UpsertBatchSize
	}
	if fc.Upload.DeleteBatchSize != nil {
		cfg.DeleteBatchSize = *fc.Upload.DeleteBatchSize
	}
	if fc.Upload.FetchBatchSize != nil {
		cfg.FetchBatchSize = *fc.Upload.FetchBatchSize
	}
	if fc.Upload.VerifyDelaySeconds != nil {
		cfg.VerifyDelay = time.Duration(*fc.Upload.VerifyDelaySeconds) * time.Second
	}
}
