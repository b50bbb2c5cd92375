package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// IntegrityResult collects the outcome of VerifyIntegrity.
type IntegrityResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

// VerifyIntegrity checks all discovered files against the .checksums manifest.
// High-security mismatches produce errors (hard fail). Operational mismatches produce warnings.
func VerifyIntegrity(files *ConfigFiles) (*IntegrityResult, error) {
	result := &IntegrityResult{Passed: true}

	checksumPath := filepath.Join(files.Root, ChecksumFile)
	manifest, err := LoadChecksums(files.Root)
	if errors.Is(err, ErrNoChecksums) {
		if len(files.HighSecurityFiles()) > 0 {
			result.Passed = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("no %s manifest found at %s but high-security files exist; run 'hostdeck config lock'", ChecksumFile, checksumPath))
			return result, nil
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no %s manifest found at %s; run 'hostdeck config lock' to enable integrity verification", ChecksumFile, checksumPath))
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	report := func(path, msg string) {
		if files.FileTier(path) == TierHighSecurity {
			result.Passed = false
			result.Errors = append(result.Errors, msg)
			return
		}
		result.Warnings = append(result.Warnings, msg)
	}

	for _, path := range files.AllFiles() {
		key, err := manifestKey(files.Root, path)
		if err != nil {
			return nil, err
		}
		expectedHash, inManifest := manifest.Hashes[key]
		if !inManifest {
			report(path, fmt.Sprintf("file %s not in %s manifest", key, ChecksumFile))
			continue
		}

		actualHash, err := ComputeBlake3Hash(path)
		if err != nil {
			report(path, fmt.Sprintf("failed to hash %s: %v", key, err))
			continue
		}
		if actualHash != expectedHash {
			report(path, fmt.Sprintf("hash mismatch for %s (expected %s, got %s)", key, expectedHash, actualHash))
		}
	}

	return result, nil
}
