// Package config collects the per-port and per-client configuration of
// spec.md §6.4 (qrpc_svconf / qrpc_clconf), grouped by concern the way the
// teacher's settingengine.go groups SettingEngine fields.
package config

import (
	"time"

	"github.com/nexusrtc/rtcd/muxstream"
)

// TransportConfig mirrors spec.md §6.4's transport{} group.
type TransportConfig struct {
	MaxOutgoingStreamSize    uint32
	InitialIncomingStreamSize uint32
	SendBufferSize           uint32
	SessionTimeout           time.Duration
	ConnectionTimeout        time.Duration
	FingerprintAlgorithm     string
	WhipPath                 string
}

// ServerConfig is qrpc_svconf: one per listening port.
type ServerConfig struct {
	Transport      TransportConfig
	AcceptPerLoop  int
	MaxSessionHint int
	MaxStreamHint  int
	HintAsLimit    bool
	Handlers       *muxstream.HandlerMap
	OnOpen         func(connectionID uint64)
	OnClose        func(connectionID uint64, reason string)
}

// ReachabilityConfig configures client-side link-change detection, the
// client-only counterpart of TransportConfig's session_timeout.
type ReachabilityConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// ClientConfig is qrpc_clconf: the client-side equivalent of ServerConfig,
// adding reconnect/reachability fields per spec.md §6.4.
type ClientConfig struct {
	Transport       TransportConfig
	Handlers        *muxstream.HandlerMap
	ReconnectBase   time.Duration // base used by the exponential-backoff retry policy, spec.md §7
	Reachability    ReachabilityConfig
	OnOpen          func(connectionID uint64)
	OnClose         func(connectionID uint64, reason string)
}

// PortConfig binds an address and its handler map to a listening port, per
// spec.md §4.14's Server.PortConfig.
type PortConfig struct {
	Address string
	Server  ServerConfig
}
