// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KBCHAT_HOME", dir)
	for _, k := range []string{"KBCHAT_API_URL", "KBCHAT_TIMEOUT", "KBCHAT_LOG_LEVEL", "KBCHAT_THEME", "KBCHAT_CREDENTIAL_KEY", "KBCHAT_NO_CACHE"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, 15, cfg.Chat.TitleLength)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.Chat.CachePath)
	assert.Equal(t, filepath.Join(dir, "kbchat.log"), cfg.Log.Path)
	assert.Equal(t, filepath.Join(dir, "credentials.json"), cfg.Auth.CredentialsPath)
}

func TestLoad_TOMLFile(t *testing.T) {
	dir := isolate(t)
	data := `
[api]
base_url = "https://kb.example.com/"
timeout_secs = 45

[ui]
theme = "Dark"

[log]
level = "WARNING"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(data), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://kb.example.com", cfg.API.BaseURL)
	assert.Equal(t, 45, cfg.API.TimeoutSecs)
	assert.Equal(t, "dark", cfg.UI.Theme)
	assert.Equal(t, "warn", cfg.Log.Level)

	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"chat":{"title_length":20}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Chat.TitleLength)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("KBCHAT_API_URL", "https://env.example.com")
	t.Setenv("KBCHAT_TIMEOUT", "12")
	t.Setenv("KBCHAT_CREDENTIAL_KEY", "hunter2")
	t.Setenv("KBCHAT_NO_CACHE", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, 12, cfg.API.TimeoutSecs)
	assert.True(t, cfg.Auth.EncryptCredentials)
	assert.Equal(t, "hunter2", cfg.Auth.CredentialKey)
	assert.False(t, cfg.Chat.HistoryCache)
	assert.NotContains(t, cfg.String(), "hunter2")
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "ftp://nowhere"
	cfg.UI.Theme = "neon"
	cfg.Chat.TitleLength = -1

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"api.base_url", "ui.theme", "chat.title_length"}, fields)
}

func TestValidate_EncryptionNeedsKey(t *testing.T) {
	cfg := Default()
	cfg.Auth.EncryptCredentials = true
	assert.Error(t, cfg.Validate())

	cfg.Auth.CredentialKey = "k"
	assert.NoError(t, cfg.Validate())
}

func TestGetSet_DotNotation(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("ui.word_wrap", "100"))
	require.NoError(t, cfg.Set("ui.show_timestamps", "yes"))
	require.NoError(t, cfg.Set("api.rate_limit_rps", "2.5"))

	v, err := cfg.Get("ui.word_wrap")
	require.NoError(t, err)
	assert.Equal(t, 100, v)
	assert.True(t, cfg.UI.ShowTimestamps)
	assert.Equal(t, 2.5, cfg.API.RateLimitRPS)

	_, err = cfg.Get("ui.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("auth.credential_key", "x"))
	assert.Error(t, cfg.Set("ui.word_wrap", "wide"))
}

func TestGetAllKeys_Resolvable(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "out.toml")

	cfg := Default()
	cfg.API.BaseURL = "https://saved.example.com"
	cfg.Chat.TitleLength = 30
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example.com", loaded.API.BaseURL)
	assert.Equal(t, 30, loaded.Chat.TitleLength)
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(".env", []byte("KBCHAT_THEME=light\nKBCHAT_DOTENV_ONLY=yes\n"), 0600))
	t.Setenv("KBCHAT_THEME", "dark")
	t.Setenv("KBCHAT_DOTENV_ONLY", "")
	require.NoError(t, os.Unsetenv("KBCHAT_DOTENV_ONLY"))

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, "dark", os.Getenv("KBCHAT_THEME"))
	assert.Equal(t, "yes", os.Getenv("KBCHAT_DOTENV_ONLY"))
}

func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}
