package config

import "time"

// RingConfig configures the Chord ring this node joins or seeds, plus
// the WebRTC transport it uses to reach other peers.
type RingConfig struct {
	// BootstrapPeers lists signaling URLs (ws://host:port/path) of
	// already-joined peers to contact first. Empty means this node
	// seeds a new ring.
	BootstrapPeers []string `yaml:"bootstrap_peers" json:"bootstrap_peers"`
	// SuccessorListSize is K, the length of the successor list.
	SuccessorListSize int `yaml:"successor_list_size" json:"successor_list_size"`
	// StabilizeInterval drives both stabilize and fix_fingers.
	StabilizeInterval time.Duration `yaml:"stabilize_interval" json:"stabilize_interval"`
	// FixFingersInterval is carried for operators who want to tune the
	// finger-table refresh independently of stabilize; the node wires
	// both to the same ticker today (see dht.Config).
	FixFingersInterval time.Duration `yaml:"fix_fingers_interval" json:"fix_fingers_interval"`
	// ICEServers lists STUN/TURN URLs handed to every transport.Peer.
	ICEServers []string `yaml:"ice_servers" json:"ice_servers"`
}
