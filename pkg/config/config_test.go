package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAndUpdate(t *testing.T) {
	cfg := New()
	assert.Empty(t, cfg.Get("database.host"))

	cfg.Update(map[string]string{"database.host": "db.internal"})
	assert.Equal(t, "db.internal", cfg.Get("database.host"))
}

func TestGetOrDefault(t *testing.T) {
	cfg := New()
	assert.Equal(t, "8080", cfg.GetOrDefault("services.api.http_port", "8080"))

	cfg.Update(map[string]string{"services.api.http_port": "9090"})
	assert.Equal(t, "9090", cfg.GetOrDefault("services.api.http_port", "8080"))

	// Empty values fall back too
	cfg.Update(map[string]string{"services.api.http_port": ""})
	assert.Equal(t, "8080", cfg.GetOrDefault("services.api.http_port", "8080"))
}

func TestFromEnvironment(t *testing.T) {
	t.Setenv("CROSSLINK_DATABASE_HOST", "db.example")
	t.Setenv("CROSSLINK_REDIS_ENABLED", "true")
	t.Setenv("UNPREFIXED_KEY", "ignored")

	cfg := FromEnvironment()
	assert.Equal(t, "db.example", cfg.Get("database.host"))
	assert.Equal(t, "true", cfg.Get("redis.enabled"))
	assert.Empty(t, cfg.Get("unprefixed.key"))
}

func TestRequiresRestart(t *testing.T) {
	cfg := New()
	cfg.Update(map[string]string{"database.host": "a", "log.level": "debug"})

	before := cfg.GetAll()
	cfg.Update(map[string]string{"log.level": "info"})
	assert.False(t, cfg.RequiresRestart(before))

	cfg.Update(map[string]string{"database.host": "b"})
	assert.True(t, cfg.RequiresRestart(before))
}

func TestGetAllReturnsCopy(t *testing.T) {
	cfg := New()
	cfg.Update(map[string]string{"database.host": "a"})

	all := cfg.GetAll()
	all["database.host"] = "tampered"
	assert.Equal(t, "a", cfg.Get("database.host"))
}
