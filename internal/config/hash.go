package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFilename is the sidecar manifest stored next to the config file.
const ChecksumFilename = ".checksums"

// ChecksumManifest maps config file base names to their BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// WriteChecksum hashes configPath and records it in the sidecar manifest, keeping entries
// for other files in the same directory. Returns the computed hash.
func WriteChecksum(configPath string) (string, error) {
	dir := filepath.Dir(configPath)
	name := filepath.Base(configPath)

	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", name, err)
	}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		manifest = &ChecksumManifest{Version: 1, Hashes: make(map[string]string)}
	}
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	manifest.Hashes[name] = hash

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksums: %w", err)
	}

	// Restrictive permissions: the manifest is the trust anchor for the config.
	if err := os.WriteFile(filepath.Join(dir, ChecksumFilename), data, 0600); err != nil {
		return "", fmt.Errorf("failed to write checksums: %w", err)
	}
	return hash, nil
}

// LoadChecksums reads the sidecar manifest from dir. A missing manifest is reported with an
// error satisfying os.IsNotExist.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFilename))
	if err != nil {
		return nil, err
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}
	return &manifest, nil
}

// VerifyConfigChecksum checks configPath against the sidecar manifest. Without a manifest the
// config is accepted unverified; with one, the file must be listed and match.
func VerifyConfigChecksum(configPath string) error {
	manifest, err := LoadChecksums(filepath.Dir(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	name := filepath.Base(configPath)
	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("config %s has no hash in %s (run 'instant-ai config hash')", name, ChecksumFilename)
	}
	if err := VerifyFileHash(configPath, expected); err != nil {
		return fmt.Errorf("config verification failed: %w\n"+
			"If you edited this file intentionally, run: instant-ai config hash", err)
	}
	return nil
}
