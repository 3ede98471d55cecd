package protocol

import "fmt"

// Operation is the control-frame operation code.
type Operation uint8

const (
	OpCreateRoom Operation = 1
	OpJoinOrList Operation = 2
	OpResponse   Operation = 10
)

func (o Operation) String() string {
	switch o {
	case OpCreateRoom:
		return "create_room"
	case OpJoinOrList:
		return "join_or_list"
	case OpResponse:
		return "response"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

// State is the control-frame state code.
type State uint8

const (
	StateRequest State = 0
	StateAck     State = 1
	StateResult  State = 2
)

func (s State) String() string {
	switch s {
	case StateRequest:
		return "request"
	case StateAck:
		return "ack"
	case StateResult:
		return "result"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Mode disambiguates OpJoinOrList. It travels as "GET" or "JOIN".
type Mode uint8

const (
	ModeNone Mode = iota
	ModeGet
	ModeJoin
)

func (m Mode) String() string {
	switch m {
	case ModeGet:
		return "GET"
	case ModeJoin:
		return "JOIN"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeNone, ModeGet, ModeJoin:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("invalid mode %d", uint8(m))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "":
		*m = ModeNone
	case "GET":
		*m = ModeGet
	case "JOIN":
		*m = ModeJoin
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrMalformedFrame, string(b))
	}
	return nil
}

// RequestKind is the resolved meaning of a request frame.
type RequestKind uint8

const (
	RequestUnknown RequestKind = iota
	RequestCreateRoom
	RequestJoinRoom
	RequestListRooms
)

func (k RequestKind) String() string {
	switch k {
	case RequestCreateRoom:
		return "create_room"
	case RequestJoinRoom:
		return "join_room"
	case RequestListRooms:
		return "list_rooms"
	default:
		return "unknown"
	}
}

// Status is the data-frame message kind.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusInitial
	StatusChat
	StatusLeave
	StatusClose
	StatusTimeout
	StatusStop
)

var statusNames = map[Status]string{
	StatusInitial: "INITIAL",
	StatusChat:    "CHAT",
	StatusLeave:   "LEAVE",
	StatusClose:   "CLOSE",
	StatusTimeout: "TIMEOUT",
	StatusStop:    "STOP",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus maps a wire name to a Status. Unrecognised names yield
// StatusUnknown so the receiver can drop the datagram instead of failing
// the decode.
func ParseStatus(name string) Status {
	for s, n := range statusNames {
		if n == name {
			return s
		}
	}
	return StatusUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	*s = ParseStatus(string(b))
	return nil
}
