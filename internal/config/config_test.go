package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeGetter map[string]string

func (f fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("parameter not found")
	}
	return v, nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "easymcp.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadActionTimeout(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"action":{"timeout_seconds":5}}`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Action.Timeout() != 5*time.Second {
		t.Fatalf("unexpected action timeout: %s", cfg.Action.Timeout())
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	dir := filepath.Dir(path)

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.TimeoutSeconds != 30 {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Conversation.HistoryTTL().Seconds() != 3600 || cfg.Conversation.PendingTTL().Seconds() != 300 {
		t.Fatalf("unexpected conversation ttls: %+v", cfg.Conversation)
	}
	if cfg.Action.Timeout() != 60*time.Second {
		t.Fatalf("unexpected action timeout: %s", cfg.Action.Timeout())
	}
	if cfg.Storage.Conversation.Driver != "memory" || cfg.Storage.Accounts.Driver != "memory" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if len(cfg.Events.Drivers) != 1 || cfg.Events.Drivers[0] != "none" {
		t.Fatalf("unexpected events drivers: %v", cfg.Events.Drivers)
	}
	if cfg.Web3.ClustersFile != filepath.Join(dir, "clusters.yaml") || cfg.Web3.DefaultCluster != "devnet" {
		t.Fatalf("unexpected web3 defaults: %+v", cfg.Web3)
	}
	if cfg.Auth.Mode != AuthModeCredentials {
		t.Fatalf("unexpected auth mode: %s", cfg.Auth.Mode)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	cases := []string{
		`{"llm":{"provider":"python_bridge"}}`,
		`{"storage":{"conversation":{"driver":"etcd"}}}`,
		`{"storage":{"conversation":{"driver":"redis"}}}`,
		`{"storage":{"conversation":{"driver":"dynamodb"}}}`,
		`{"storage":{"accounts":{"driver":"sqlite"}}}`,
		`{"events":{"drivers":["kafka"]}}`,
		`{"auth":{"mode":"jwt"}}`,
	}
	for _, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("expected error for %s", content)
		}
	}
}

func TestSecretResolutionOrder(t *testing.T) {
	t.Setenv("EASYMCP_TEST_KEY", "from-env")
	getter := fakeGetter{"/easymcp/key": "from-ssm"}
	ctx := context.Background()

	cases := []struct {
		secret Secret
		want   string
	}{
		{Secret{Value: "inline", Env: "EASYMCP_TEST_KEY", Param: "/easymcp/key"}, "inline"},
		{Secret{Env: "EASYMCP_TEST_KEY", Param: "/easymcp/key"}, "from-env"},
		{Secret{Env: "EASYMCP_UNSET_KEY", Param: "/easymcp/key"}, "from-ssm"},
		{Secret{}, ""},
	}
	for _, tc := range cases {
		got, err := tc.secret.Resolve(ctx, getter)
		if err != nil {
			t.Fatalf("resolve %+v: %v", tc.secret, err)
		}
		if got != tc.want {
			t.Fatalf("resolve %+v = %q, want %q", tc.secret, got, tc.want)
		}
	}

	if _, err := (Secret{Param: "/easymcp/key"}).Resolve(ctx, nil); err == nil {
		t.Fatalf("expected error without getter")
	}
}

func TestSecretAcceptsStringOrObject(t *testing.T) {
	path := writeConfig(t, `{
  "llm": {"api_key": "sk-inline"},
  "wallet": {"sealing_key": {"env": "SEAL", "param": "/easymcp/seal"}}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LLM.APIKey.Value != "sk-inline" {
		t.Fatalf("unexpected api key: %+v", cfg.LLM.APIKey)
	}
	if cfg.Wallet.SealingKey.Param != "/easymcp/seal" || cfg.Wallet.SealingKey.Env != "SEAL" {
		t.Fatalf("unexpected sealing key: %+v", cfg.Wallet.SealingKey)
	}
	if cfg.LLM.APIKey.String() != "***" {
		t.Fatalf("secret should be masked when printed")
	}
	if !cfg.NeedsParamStore() || !cfg.NeedsAWS() {
		t.Fatalf("expected ssm to be required")
	}

	if err := cfg.ResolveSecrets(context.Background(), fakeGetter{"/easymcp/seal": "seal-key"}); err != nil {
		t.Fatalf("resolve secrets: %v", err)
	}
	if cfg.Wallet.SealingKey.Value != "seal-key" {
		t.Fatalf("unexpected resolved sealing key: %q", cfg.Wallet.SealingKey.Value)
	}
	if cfg.NeedsParamStore() {
		t.Fatalf("resolved secrets should not require ssm")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Fatalf("unexpected default path: %s", got)
	}
	t.Setenv(EnvConfigPath, "/etc/easymcp.json")
	if got := ResolvePath(""); got != "/etc/easymcp.json" {
		t.Fatalf("unexpected env path: %s", got)
	}
	if got := ResolvePath("local.json"); got != "local.json" {
		t.Fatalf("flag should win: %s", got)
	}
}
