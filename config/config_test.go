package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"klubstake/crypto"
	"klubstake/native/deposit"
)

var testAdmin = crypto.DeriveAddress(crypto.KlubPrefix, "admin").String()

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != DefaultListenAddress || cfg.Contract.AcceptedDenom != DefaultAcceptedDenom {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Setup.Symbol != cfg.Setup.Symbol || reloaded.RPC.Burst != cfg.RPC.Burst {
		t.Fatalf("reloaded config differs: %+v vs %+v", reloaded, cfg)
	}
	if cfg.SetupRequested() {
		t.Fatalf("default config must not request setup")
	}
}

func TestLoadParsesTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `ListenAddress = "0.0.0.0:9000"
DataDir = "/var/lib/klub"
Environment = "prod"
LogLevel = "debug"

[Contract]
AcceptedDenom = "ujuno"
ExtraFunds = "reject"
AllowZeroDeposit = true

[Setup]
Admin = "`+testAdmin+`"
Name = "KJuno"
Symbol = "Klubj"
Decimals = 8
MinWithdrawal = "5"

[RPC]
JWTSecret = "s3cret"
JWTIssuer = "klub"
ClockSkewSeconds = 30
RequestsPerMinute = 120
Burst = 10
TrustedProxies = ["10.0.0.0/8", "192.0.2.1"]

[Journal]
DSN = "file:journal.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9000" || cfg.Contract.AcceptedDenom != "ujuno" {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	policy, err := cfg.Policy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if policy.ExtraFunds != deposit.ExtraFundsReject || !policy.AllowZeroDeposit {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	admin, msg, err := cfg.InstantiateMsg()
	if err != nil {
		t.Fatalf("instantiate msg: %v", err)
	}
	if admin.String() != testAdmin || msg.Symbol != "Klubj" || msg.Decimals != 8 || msg.MinWithdrawal != "5" {
		t.Fatalf("unexpected instantiate msg: %s %+v", admin, msg)
	}
	server := cfg.ServerConfig()
	if !server.JWT.Enable || server.JWT.ClockSkew != 30*time.Second || server.RateLimit.Burst != 10 {
		t.Fatalf("unexpected server config: %+v", server)
	}
	if len(server.TrustedProxies) != 2 || server.TrustedProxies[0] != "10.0.0.0/8" {
		t.Fatalf("unexpected trusted proxies: %v", server.TrustedProxies)
	}
	if cfg.Journal.DSN != "file:journal.db" {
		t.Fatalf("unexpected journal dsn %q", cfg.Journal.DSN)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `listenAddress: 127.0.0.1:7000
contract:
  acceptedDenom: uatom
telemetry:
  enabled: true
  endpoint: collector:4318
  insecure: true
  headers:
    x-api-key: abc
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:7000" || cfg.Contract.AcceptedDenom != "uatom" {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.Contract.ExtraFunds != "ignore" {
		t.Fatalf("expected default extra funds policy, got %q", cfg.Contract.ExtraFunds)
	}
	otelCfg := cfg.OTel("klubd")
	if !otelCfg.Enabled || otelCfg.Endpoint != "collector:4318" || otelCfg.Headers["x-api-key"] != "abc" {
		t.Fatalf("unexpected otel config: %+v", otelCfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"policy":  "[Contract]\nExtraFunds = \"refund\"\n",
		"admin":   "[Setup]\nAdmin = \"cosmos1qqqq\"\n",
		"address": "[Contract]\nAddress = \"not-an-address\"\n",
		"amount":  "[Setup]\nMinWithdrawal = \"-3\"\n",
		"unknown": "Bootnodes = []\n",
		"otel":    "[Telemetry]\nEnabled = true\n",
		"proxy":   "[RPC]\nTrustedProxies = [\"10.0.0.0/33\"]\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "config.toml", contents)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestValidateRejectsEmptyDenom(t *testing.T) {
	cfg := defaults()
	cfg.Contract.AcceptedDenom = "  "
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "AcceptedDenom") {
		t.Fatalf("expected denom error, got %v", err)
	}
}

func TestSaveRoundTripsYAML(t *testing.T) {
	cfg := defaults()
	cfg.Setup.Admin = testAdmin
	cfg.Journal.DSN = "postgres://klub@db/klub"
	path := filepath.Join(t.TempDir(), "klub.yml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Setup.Admin != testAdmin || loaded.Journal.DSN != cfg.Journal.DSN {
		t.Fatalf("unexpected round trip: %+v", loaded)
	}
	if !loaded.SetupRequested() {
		t.Fatalf("expected setup to be requested")
	}
}

func TestOTelMergesEnvironmentHeaders(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "tenant=klub, x-api-key=env")
	cfg := defaults()
	cfg.Telemetry.Headers = map[string]string{"x-api-key": "file"}

	otelCfg := cfg.OTel("klubd")
	if otelCfg.Headers["tenant"] != "klub" {
		t.Fatalf("expected env header, got %v", otelCfg.Headers)
	}
	if otelCfg.Headers["x-api-key"] != "file" {
		t.Fatalf("configured header should win, got %v", otelCfg.Headers)
	}
}
