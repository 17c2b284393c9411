package models

import "time"

type PeerRole string

const (
	RoleForeground PeerRole = "foreground"
	RoleBackground PeerRole = "background"
)

// Peer is a running process reachable over the message channel.
type Peer struct {
	ID       string
	Role     PeerRole
	Addr     string
	LastSeen time.Time
}
