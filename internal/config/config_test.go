package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modelkit/internal/blob"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse(`
[storage]
driver = "objectstore"
object_prefix = "tenants/a"

[blob]
driver = "s3"

[blob.s3]
bucket = "state"
endpoint = "http://minio:9000"
path_style = true

[service]
queue_size = 8
slow_operation = "250ms"

[logging]
level = "debug"
format = "json"
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Driver != StorageObjectStore || cfg.Storage.ObjectPrefix != "tenants/a" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Storage.SQLitePath != "modelkit.db" {
		t.Fatalf("expected default sqlite path kept, got %q", cfg.Storage.SQLitePath)
	}
	settings := cfg.BlobSettings()
	if settings.Driver != blob.DriverS3 || settings.S3.Bucket != "state" || !settings.S3.PathStyle {
		t.Fatalf("unexpected blob settings %+v", settings)
	}
	if cfg.Service.QueueSize != 8 || cfg.Service.SlowOperation.Duration() != 250*time.Millisecond {
		t.Fatalf("unexpected service %+v", cfg.Service)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"storage driver": "[storage]\ndriver = \"tape\"",
		"blob driver":    "[blob]\ndriver = \"ftp\"",
		"missing bucket": "[storage]\ndriver = \"objectstore\"\n[blob]\ndriver = \"s3\"",
		"queue size":     "[service]\nqueue_size = -1",
		"log level":      "[logging]\nlevel = \"loud\"",
		"log format":     "[logging]\nformat = \"xml\"",
		"duration":       "[service]\nslow_operation = \"soon\"",
		"syntax":         "[storage",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(text); err == nil {
				t.Fatalf("expected error for %q", text)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MODELKIT_STORAGE_DRIVER":     "postgres",
		"MODELKIT_POSTGRES_DSN":       "postgres://db/modelkit",
		"MODELKIT_BLOB_DRIVER":        "memory",
		"MODELKIT_BLOB_S3_BUCKET":     "b",
		"MODELKIT_BLOB_S3_PATH_STYLE": "true",
		"MODELKIT_LOG_LEVEL":          "warn",
		"MODELKIT_QUEUE_SIZE":         "3",
		"MODELKIT_SLOW_OPERATION":     "2s",
		"MODELKIT_SQLITE_PATH":        "",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Storage.Driver != StoragePostgres || cfg.Storage.PostgresDSN != "postgres://db/modelkit" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Storage.SQLitePath != "modelkit.db" {
		t.Fatalf("empty env values must not override, got %q", cfg.Storage.SQLitePath)
	}
	if cfg.Blob.Driver != blob.DriverMemory || cfg.Blob.S3.Bucket != "b" || !cfg.Blob.S3.PathStyle {
		t.Fatalf("unexpected blob %+v", cfg.Blob)
	}
	if cfg.Logging.Level != "warn" || cfg.Service.QueueSize != 3 || cfg.Service.SlowOperation.Duration() != 2*time.Second {
		t.Fatalf("unexpected overrides %+v", cfg)
	}

	for _, bad := range []string{"MODELKIT_QUEUE_SIZE", "MODELKIT_BLOB_S3_PATH_STYLE", "MODELKIT_SLOW_OPERATION"} {
		cfg := Default()
		err := cfg.applyEnv(func(k string) (string, bool) {
			if k == bad {
				return "not-a-value", true
			}
			return "", false
		})
		if err == nil || !strings.Contains(err.Error(), bad) {
			t.Fatalf("expected %s parse error, got %v", bad, err)
		}
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelkit.toml")
	if err := os.WriteFile(path, []byte("[storage]\ndriver = \"memory\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MODELKIT_LOG_LEVEL", "debug")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected explicit missing file to fail")
	}
	t.Setenv("MODELKIT_STORAGE_DRIVER", "tape")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected invalid env driver to fail validation")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output %q", out)
	}
	if len(StorageDrivers()) != 4 {
		t.Fatalf("unexpected drivers %v", StorageDrivers())
	}
}
