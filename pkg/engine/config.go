package engine

import (
	"fmt"
	"net"
	"time"

	"github.com/pion/ice/v2"
	"github.com/pion/ion-ortc/pkg/logger"
	"github.com/pion/webrtc/v3"
)

const (
	defaultGatherTimeout = 5 * time.Second
	tcpReadBufferSize    = 8
)

// ICEServerConfig defines parameters for ice servers
type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Candidates struct {
	IceLite    bool     `mapstructure:"icelite"`
	NAT1To1IPs []string `mapstructure:"nat1to1"`
}

// WebRTCConfig defines parameters for ice
type WebRTCConfig struct {
	ICEPortRange []uint16          `mapstructure:"portrange"`
	ICEServers   []ICEServerConfig `mapstructure:"iceserver"`
	Candidates   Candidates        `mapstructure:"candidates"`
	// UDPPort, when set, multiplexes every transport on one UDP socket.
	UDPPort int `mapstructure:"udpport"`
	// TCPPort, when set, enables ICE-TCP candidates on one TCP listener.
	TCPPort       int           `mapstructure:"tcpport"`
	ListenIP      string        `mapstructure:"listenip"`
	GatherTimeout time.Duration `mapstructure:"gathertimeout"`
}

// Config of a pion worker.
type Config struct {
	WebRTC WebRTCConfig `mapstructure:"webrtc"`
	Turn   TurnConfig   `mapstructure:"turn"`
}

// settings is the part of a worker every transport starts from.
type settings struct {
	engine        webrtc.SettingEngine
	iceServers    []webrtc.ICEServer
	gatherTimeout time.Duration
	tcp           bool
	udpMux        ice.UDPMux
	tcpMux        ice.TCPMux
	closers       []func() error
}

// newSettings parses our config and returns the setting engine transports
// are created with.
func newSettings(c WebRTCConfig, died func(error)) (*settings, error) {
	s := &settings{gatherTimeout: c.GatherTimeout}
	if s.gatherTimeout <= 0 {
		s.gatherTimeout = defaultGatherTimeout
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = logger.LoggerFactory{Logger: Logger.WithName("pion")}
	se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)

	if len(c.ICEPortRange) == 2 {
		if err := se.SetEphemeralUDPPortRange(c.ICEPortRange[0], c.ICEPortRange[1]); err != nil {
			return nil, err
		}
	}

	if c.Candidates.IceLite {
		se.SetLite(true)
	} else {
		for _, iceServer := range c.ICEServers {
			s.iceServers = append(s.iceServers, webrtc.ICEServer{
				URLs:       iceServer.URLs,
				Username:   iceServer.Username,
				Credential: iceServer.Credential,
			})
		}
	}

	if len(c.Candidates.NAT1To1IPs) > 0 {
		se.SetNAT1To1IPs(c.Candidates.NAT1To1IPs, webrtc.ICECandidateTypeHost)
	}

	ip := net.ParseIP(c.ListenIP)
	if c.ListenIP != "" && ip == nil {
		return nil, fmt.Errorf("invalid listen ip %q", c.ListenIP)
	}
	if ip == nil {
		ip = net.IPv4zero
	}

	if c.UDPPort != 0 {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: c.UDPPort})
		if err != nil {
			return nil, err
		}
		s.udpMux = webrtc.NewICEUDPMux(se.LoggerFactory.NewLogger("udpmux"), newWatchedPacketConn(conn, died))
		se.SetICEUDPMux(s.udpMux)
		s.closers = append(s.closers, s.udpMux.Close)
		Logger.V(0).Info("ICE UDP mux listening", "addr", conn.LocalAddr().String())
	}

	if c.TCPPort != 0 {
		l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: ip, Port: c.TCPPort})
		if err != nil {
			s.close()
			return nil, err
		}
		s.tcpMux = webrtc.NewICETCPMux(se.LoggerFactory.NewLogger("tcpmux"), l, tcpReadBufferSize)
		se.SetICETCPMux(s.tcpMux)
		s.tcp = true
		s.closers = append(s.closers, s.tcpMux.Close)
		Logger.V(0).Info("ICE TCP mux listening", "addr", l.Addr().String())
	}

	s.engine = se
	return s, nil
}

// forTransport returns a setting engine restricted to the requested
// networks.
func (s *settings) forTransport(opts WebRtcTransportOptions) (webrtc.SettingEngine, error) {
	var types []webrtc.NetworkType
	if opts.EnableUDP {
		types = append(types, webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6)
	}
	if opts.EnableTCP && s.tcp {
		types = append(types, webrtc.NetworkTypeTCP4, webrtc.NetworkTypeTCP6)
	}
	if len(types) == 0 {
		return webrtc.SettingEngine{}, ErrNoNetwork
	}
	se := s.engine
	se.SetNetworkTypes(types)
	return se, nil
}

func (s *settings) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			Logger.Error(err, "closing ice mux")
		}
	}
	s.closers = nil
}
