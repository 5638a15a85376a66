package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HUDDLE_SERVER", "")
	t.Setenv("STUN_SERVER", "")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDomain, cfg.Domain)
	assert.Equal(t, "wss://"+DefaultDomain+"/ws", cfg.WebSocketURL)
	assert.Equal(t, []string{DefaultSTUN}, cfg.STUNServers())
	assert.Equal(t, DefaultClaimTimeout, cfg.ClaimTimeout)
	assert.False(t, cfg.ForceRelay)
}

func TestLoadPriority(t *testing.T) {
	t.Setenv("HUDDLE_SERVER", "env.example")
	t.Setenv("TURN_USERNAME", "env-user")
	t.Setenv("HUDDLE_CLAIM_TIMEOUT", "2s")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "env.example", cfg.Domain)
	assert.Equal(t, "env-user", cfg.TURNUser)
	assert.Equal(t, 2*time.Second, cfg.ClaimTimeout)

	cfg, err = Load(Options{Domain: "flag.example", Insecure: true, ClaimTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "ws://flag.example/ws", cfg.WebSocketURL)
	assert.Equal(t, time.Second, cfg.ClaimTimeout)
	assert.Equal(t, "env-user", cfg.TURNUser)
}

func TestLoadFullURL(t *testing.T) {
	cfg, err := Load(Options{Domain: "ws://127.0.0.1:8080/ws"})
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/ws", cfg.WebSocketURL)
}

func TestTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn:relay.example", TURNUser: "u", TURNPass: "p"}
	assert.Equal(t, []string{
		"turn:relay.example:3478?transport=udp",
		"turn:relay.example:3478?transport=tcp",
		"turns:relay.example:5349?transport=tcp",
	}, cfg.TURNServers())
	user, pass := cfg.TURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	assert.Nil(t, (&Config{}).TURNServers())
}

func TestRelayRequired(t *testing.T) {
	up := net.FlagUp
	ipnet := func(s string) net.Addr {
		return &net.IPNet{IP: net.ParseIP(s), Mask: net.CIDRMask(24, 32)}
	}

	assert.False(t, relayRequired([]netInterface{{name: "eth0", flags: up, addrs: []net.Addr{ipnet("192.168.1.4")}}}))
	assert.True(t, relayRequired([]netInterface{{name: "wg0", flags: up}}))
	assert.True(t, relayRequired([]netInterface{{name: "eth0", flags: up, addrs: []net.Addr{ipnet("100.100.1.2")}}}))
	assert.False(t, relayRequired([]netInterface{{name: "tun0"}}))
	assert.False(t, relayRequired([]netInterface{{name: "lo", flags: up | net.FlagLoopback, addrs: []net.Addr{ipnet("100.64.0.1")}}}))
}

func TestLoadServerDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, RegistryMemory, cfg.Registry.Driver)
	assert.Equal(t, 30*time.Second, cfg.Registry.TTL)
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingPeriod())
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoadServerFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huddle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
instance_id: "dir-1"
registry:
  driver: redis
  ttl: 10s
redis:
  address: "redis:6379"
`), 0o644))
	t.Setenv("HUDDLE_REDIS_DB", "3")

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "dir-1", cfg.InstanceID)
	assert.Equal(t, RegistryRedis, cfg.Registry.Driver)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadServerRejectsDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huddle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry:\n  driver: etcd\n"), 0o644))
	_, err := LoadServer(path)
	assert.Error(t, err)
}
