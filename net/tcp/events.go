package tcp

import (
	"time"

	"github.com/hsgames/evnet/event"
	evnet "github.com/hsgames/evnet/net"
)

// Events dispatched through Server.Events. EventOpen and EventClose carry a
// ConnInfo, EventError an ErrorInfo.
const (
	EventOpen event.Event = iota + 1
	EventClose
	EventError
)

type ConnInfo struct {
	ID            evnet.ConnID
	Name          string
	State         State
	LocalAddr     string
	RemoteAddr    string
	ReadBytes     uint64
	WriteBytes    uint64
	PendingWrites int
	OpenedAt      time.Time
}

type ErrorInfo struct {
	ConnInfo
	Err error
}

// Stats is a loop-side snapshot of the server's resources.
type Stats struct {
	Conns        int
	Accepted     uint64
	Rejected     uint64
	Closed       uint64
	ReadBuffers  int
	WriteBuffers int
	Callbacks    int
}
