package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	fixtransport "tradelink/pkg/broker/fix"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_BROKER_HOST", "10.0.0.5")
	t.Setenv("TEST_BROKER_ACCOUNT", "DU99")

	path := writeConfig(t, `
service_name: tradelink
logging:
  level: debug
broker:
  host: ${TEST_BROKER_HOST}
  port: 5001
  client_id: 3
  account: ${TEST_BROKER_ACCOUNT}
  connect_timeout_ms: 2000
fix:
  settings_path: ./fix.cfg
  account: ${TEST_BROKER_ACCOUNT}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "tradelink" {
		t.Errorf("service name: %q", cfg.ServiceName)
	}
	if cfg.Broker.Host != "10.0.0.5" {
		t.Errorf("env not expanded: %q", cfg.Broker.Host)
	}
	if cfg.Fix.Account != "DU99" {
		t.Errorf("fix account: %q", cfg.Fix.Account)
	}
	if cfg.Feed != nil {
		t.Error("feed section should be absent")
	}

	bc := cfg.Broker.ToBroker()
	if bc.ConnectTimeout != 2*time.Second {
		t.Errorf("connect timeout: %v", bc.ConnectTimeout)
	}
	if bc.CallTimeout != 0 {
		t.Errorf("unset timeout must stay zero for the client default: %v", bc.CallTimeout)
	}
	if bc.ClientID != 3 {
		t.Errorf("client id: %d", bc.ClientID)
	}
}

func TestValidateRequiredSections(t *testing.T) {
	path := writeConfig(t, `
service_name: tradelink
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without broker section")
	}

	cfg.Broker = &BrokerConfig{Host: "127.0.0.1", Port: 5001}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without fix section")
	}

	cfg.Fix = &fixtransport.Config{SettingsPath: "./fix.cfg"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "broker: [not, a, mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
