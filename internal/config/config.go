package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values (production)
const (
	DefaultDomain       = "huddle.qzz.io"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultTURN         = "turn:huddle.qzz.io"
	DefaultTURNUser     = "huddle"
	DefaultTURNPass     = "huddle-secret"
	DefaultClaimTimeout = 5 * time.Second
)

// Config holds client configuration.
type Config struct {
	// Domain is the directory host, or a full ws(s):// URL.
	Domain string

	// WebSocketURL is derived from Domain.
	WebSocketURL string

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates.
	ForceRelay   bool
	ClaimTimeout time.Duration

	// Media files replayed as the local capture.
	AudioFile string
	VideoFile string
}

// Options carries CLI flag values. Empty fields fall through to the
// environment and then to the defaults.
type Options struct {
	Domain       string
	Insecure     bool
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool
	ClaimTimeout time.Duration
	AudioFile    string
	VideoFile    string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	v := viper.New()

	defaults := []struct {
		key, env string
		value    any
	}{
		{"domain", "HUDDLE_SERVER", DefaultDomain},
		{"insecure", "HUDDLE_INSECURE", false},
		{"stun", "STUN_SERVER", DefaultSTUN},
		{"turn", "TURN_SERVER", DefaultTURN},
		{"turn_user", "TURN_USERNAME", DefaultTURNUser},
		{"turn_pass", "TURN_PASSWORD", DefaultTURNPass},
		{"force_relay", "HUDDLE_FORCE_RELAY", false},
		{"claim_timeout", "HUDDLE_CLAIM_TIMEOUT", DefaultClaimTimeout},
		{"audio_file", "HUDDLE_AUDIO_FILE", ""},
		{"video_file", "HUDDLE_VIDEO_FILE", ""},
	}
	for _, d := range defaults {
		v.SetDefault(d.key, d.value)
		if err := v.BindEnv(d.key, d.env); err != nil {
			return nil, err
		}
	}

	override := func(key string, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	override("domain", opts.Domain)
	override("stun", opts.STUNServer)
	override("turn", opts.TURNServer)
	override("turn_user", opts.TURNUser)
	override("turn_pass", opts.TURNPass)
	override("audio_file", opts.AudioFile)
	override("video_file", opts.VideoFile)
	if opts.Insecure {
		v.Set("insecure", true)
	}
	if opts.ForceRelay {
		v.Set("force_relay", true)
	}
	if opts.ClaimTimeout > 0 {
		v.Set("claim_timeout", opts.ClaimTimeout)
	}

	claim := v.GetDuration("claim_timeout")
	if claim <= 0 {
		return nil, fmt.Errorf("claim timeout must be positive, got %q", v.GetString("claim_timeout"))
	}

	domain := strings.TrimSpace(v.GetString("domain"))
	if domain == "" {
		return nil, fmt.Errorf("directory server is empty")
	}

	return &Config{
		Domain:       domain,
		WebSocketURL: webSocketURL(domain, v.GetBool("insecure")),
		STUNServer:   v.GetString("stun"),
		TURNServer:   v.GetString("turn"),
		TURNUser:     v.GetString("turn_user"),
		TURNPass:     v.GetString("turn_pass"),
		ForceRelay:   v.GetBool("force_relay"),
		ClaimTimeout: claim,
		AudioFile:    v.GetString("audio_file"),
		VideoFile:    v.GetString("video_file"),
	}, nil
}

func webSocketURL(domain string, insecure bool) string {
	if strings.Contains(domain, "://") {
		return domain
	}
	scheme := "wss"
	if insecure {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, domain)
}

// STUNServers returns STUN server URLs.
func (c *Config) STUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// TURNServers returns TURN server URLs if configured.
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// TURNCredentials returns TURN username and password.
func (c *Config) TURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
