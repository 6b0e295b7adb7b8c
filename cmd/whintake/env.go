package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/whintake/whintake/internal/backup"
)

// loadDotEnv reads KEY=VALUE lines from dataDir/.env. A missing file is
// not an error. Double-quoted values are unquoted; single quotes are
// rejected.
func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", key)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", key)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

// s3ConfigFromEnv reads the WHINTAKE_S3_* keys. The returned Bucket is
// empty when the mirror is not configured.
func s3ConfigFromEnv(env map[string]string) backup.S3Config {
	pathStyle, _ := strconv.ParseBool(env["WHINTAKE_S3_PATH_STYLE"])
	return backup.S3Config{
		Bucket:          env["WHINTAKE_S3_BUCKET"],
		Region:          env["WHINTAKE_S3_REGION"],
		Endpoint:        env["WHINTAKE_S3_ENDPOINT"],
		Prefix:          env["WHINTAKE_S3_PREFIX"],
		PathStyle:       pathStyle,
		AccessKeyID:     env["WHINTAKE_S3_ACCESS_KEY_ID"],
		SecretAccessKey: env["WHINTAKE_S3_SECRET_ACCESS_KEY"],
	}
}
