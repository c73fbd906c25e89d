package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " "}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing dots and underscores
	result = strings.Trim(result, "._")

	return result
}

// GenerateOutputFilename builds <dir>/<prefix><subject>_<mode>_<kind>.<format>
// with each part sanitized. An empty mode is omitted.
func GenerateOutputFilename(outputDir, prefix, subject, mode, kind, format string) string {
	if format == "" {
		format = "jpg"
	}

	parts := []string{SanitizeFilename(subject)}
	if m := SanitizeFilename(strings.ToLower(mode)); m != "" {
		parts = append(parts, m)
	}
	parts = append(parts, SanitizeFilename(kind))

	outputName := fmt.Sprintf("%s%s.%s", prefix, strings.Join(parts, "_"), format)
	return filepath.Join(outputDir, outputName)
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
