package rtc

import (
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Huddle/internal/config"
)

// Settings shape every PeerConnection a Network creates.
type Settings struct {
	ICEServers []webrtc.ICEServer
	// ForceRelay restricts candidates to TURN.
	ForceRelay bool

	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAlive           time.Duration

	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host peers.
	IncludeLoopback bool
}

// SettingsFromConfig builds ICE settings from client configuration. Relay
// is forced when asked for, or when the host looks to be behind a VPN or
// CGNAT and a TURN server is available.
func SettingsFromConfig(cfg *config.Config) Settings {
	var servers []webrtc.ICEServer
	if stun := cfg.STUNServers(); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turn := cfg.TURNServers()
	if len(turn) > 0 {
		user, pass := cfg.TURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}

	return Settings{
		ICEServers:          servers,
		ForceRelay:          len(turn) > 0 && (cfg.ForceRelay || config.ShouldForceRelay()),
		DisconnectedTimeout: 5 * time.Second,
		FailedTimeout:       15 * time.Second,
		KeepAlive:           2 * time.Second,
	}
}

// Configuration returns the PeerConnection configuration.
func (s Settings) Configuration() webrtc.Configuration {
	policy := webrtc.ICETransportPolicyAll
	if s.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}
	return webrtc.Configuration{
		ICEServers:         s.ICEServers,
		ICETransportPolicy: policy,
	}
}

// NewAPI builds a pion API with the default codecs, the default interceptors
// and a periodic PLI so remote video recovers from loss.
func NewAPI(s Settings) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, err
	}
	i.Add(pli)
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	if s.DisconnectedTimeout > 0 && s.FailedTimeout > 0 {
		se.SetICETimeouts(s.DisconnectedTimeout, s.FailedTimeout, s.KeepAlive)
	}
	if s.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	), nil
}
