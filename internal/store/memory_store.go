package store

import (
	"fmt"
	"net/netip"
	"slices"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/domain"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/password"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/protocol"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/token"
)

// maxTokenAttempts bounds regeneration on a token collision.
const maxTokenAttempts = 8

type member struct {
	token      string
	userName   string
	addr       netip.AddrPort
	lastAccess time.Time
	isHost     bool
}

type room struct {
	name         string
	passwordHash string
	createdAt    time.Time
	members      map[string]*member // by token
	order        []string           // tokens in join order
}

func (r *room) host() *member {
	for _, tok := range r.order {
		if m := r.members[tok]; m.isHost {
			return m
		}
	}
	return nil
}

func (r *room) addresses() []domain.MemberAddress {
	out := make([]domain.MemberAddress, 0, len(r.order))
	for _, tok := range r.order {
		m := r.members[tok]
		out = append(out, domain.MemberAddress{
			Token:    m.token,
			UserName: m.userName,
			Address:  m.addr,
			IsHost:   m.isHost,
		})
	}
	return out
}

func (r *room) summary() domain.RoomSummary {
	s := domain.RoomSummary{
		Name:      r.name,
		CreatedAt: r.createdAt,
		Members:   make([]domain.MemberSummary, 0, len(r.order)),
	}
	for _, tok := range r.order {
		m := r.members[tok]
		if m.isHost {
			s.Host = m.userName
		}
		s.Members = append(s.Members, domain.MemberSummary{
			UserName:   m.userName,
			Address:    m.addr.String(),
			IsHost:     m.isHost,
			LastAccess: m.lastAccess,
		})
	}
	return s
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// MemoryStore is an in-memory SessionStore guarded by one mutex. Password
// hashing and verification run outside the lock.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[string]*room
	tokens map[string]string // token -> room name

	gen    token.Generator
	hasher password.Hasher
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(gen token.Generator, hasher password.Hasher, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		rooms:  make(map[string]*room),
		tokens: make(map[string]string),
		gen:    gen,
		hasher: hasher,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateRoomName(name string) error {
	if name == "" || len(name) > protocol.MaxRoomNameBytes || !utf8.ValidString(name) {
		return domain.ErrInvalidRoomName
	}
	return nil
}

// issueToken must be called with s.mu held.
func (s *MemoryStore) issueToken(roomName string) (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		tok, err := s.gen.Generate()
		if err != nil {
			return "", err
		}
		if _, taken := s.tokens[tok]; !taken {
			s.tokens[tok] = roomName
			return tok, nil
		}
	}
	return "", fmt.Errorf("failed to issue a unique token after %d attempts", maxTokenAttempts)
}

// addMember must be called with s.mu held.
func (s *MemoryStore) addMember(r *room, userName string, addr netip.AddrPort, isHost bool) (string, error) {
	tok, err := s.issueToken(r.name)
	if err != nil {
		return "", err
	}
	r.members[tok] = &member{
		token:      tok,
		userName:   userName,
		addr:       addr,
		lastAccess: s.now(),
		isHost:     isHost,
	}
	r.order = append(r.order, tok)
	return tok, nil
}

// removeMember must be called with s.mu held. Empty rooms are deleted.
func (s *MemoryStore) removeMember(r *room, tok string) {
	delete(r.members, tok)
	delete(s.tokens, tok)
	r.order = slices.DeleteFunc(r.order, func(t string) bool { return t == tok })
	if len(r.members) == 0 {
		delete(s.rooms, r.name)
	}
}

// removeRoom must be called with s.mu held.
func (s *MemoryStore) removeRoom(r *room) []domain.MemberAddress {
	addrs := r.addresses()
	for tok := range r.members {
		delete(s.tokens, tok)
	}
	delete(s.rooms, r.name)
	return addrs
}

// lookup must be called with s.mu held.
func (s *MemoryStore) lookup(roomName, tok string) (*room, *member, error) {
	r, ok := s.rooms[roomName]
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	m, ok := r.members[tok]
	if !ok {
		return r, nil, domain.ErrMemberNotFound
	}
	return r, m, nil
}

func (s *MemoryStore) CreateRoom(roomName, userName, password string, hostAddr netip.AddrPort) (string, error) {
	if err := validateRoomName(roomName); err != nil {
		return "", err
	}

	s.mu.Lock()
	_, exists := s.rooms[roomName]
	s.mu.Unlock()
	if exists {
		return "", domain.ErrRoomAlreadyExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another creator may have won while hashing.
	if _, exists := s.rooms[roomName]; exists {
		return "", domain.ErrRoomAlreadyExists
	}

	r := &room{
		name:         roomName,
		passwordHash: hash,
		createdAt:    s.now(),
		members:      make(map[string]*member),
	}
	tok, err := s.addMember(r, userName, hostAddr, true)
	if err != nil {
		return "", err
	}
	s.rooms[roomName] = r
	return tok, nil
}

func (s *MemoryStore) JoinRoom(roomName, userName, password string, guestAddr netip.AddrPort) (string, error) {
	s.mu.Lock()
	r, ok := s.rooms[roomName]
	var hash string
	if ok {
		hash = r.passwordHash
	}
	s.mu.Unlock()
	if !ok {
		return "", domain.ErrRoomNotFound
	}

	if !s.hasher.Verify(password, hash) {
		return "", domain.ErrInvalidPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The room may have been closed, or closed and re-created, meanwhile.
	if s.rooms[roomName] != r {
		return "", domain.ErrRoomNotFound
	}
	return s.addMember(r, userName, guestAddr, false)
}

func (s *MemoryStore) CheckPassword(roomName, password string) error {
	s.mu.Lock()
	r, ok := s.rooms[roomName]
	var hash string
	if ok {
		hash = r.passwordHash
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if !s.hasher.Verify(password, hash) {
		return domain.ErrInvalidPassword
	}
	return nil
}

func (s *MemoryStore) ListRooms() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rooms) == 0 {
		return nil, domain.ErrNoRoomsAvailable
	}
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) MigrateAddress(roomName, tok string, newAddr netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, m, err := s.lookup(roomName, tok)
	if err != nil {
		return err
	}
	m.addr = newAddr
	return nil
}

func (s *MemoryStore) Authenticate(roomName, tok string, sender netip.AddrPort) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, m, err := s.lookup(roomName, tok)
	if err != nil {
		return false
	}
	return m.addr == sender
}

func (s *MemoryStore) Touch(roomName, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, m, err := s.lookup(roomName, tok)
	if err != nil {
		return err
	}
	m.lastAccess = s.now()
	return nil
}

func (s *MemoryStore) MemberAddresses(roomName string) ([]domain.MemberAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return r.addresses(), nil
}

func (s *MemoryStore) IsHost(roomName, tok string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, m, err := s.lookup(roomName, tok)
	if err != nil {
		return false, err
	}
	return m.isHost, nil
}

func (s *MemoryStore) RemoveMember(roomName, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _, err := s.lookup(roomName, tok)
	if err != nil {
		return err
	}
	s.removeMember(r, tok)
	return nil
}

func (s *MemoryStore) RemoveRoom(roomName string) ([]domain.MemberAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return s.removeRoom(r), nil
}

func (s *MemoryStore) Leave(roomName, tok string) (domain.LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, m, err := s.lookup(roomName, tok)
	if err != nil {
		return domain.LeaveResult{}, err
	}

	res := domain.LeaveResult{
		RoomName: roomName,
		UserName: m.userName,
		WasHost:  m.isHost,
	}
	if m.isHost {
		for _, a := range s.removeRoom(r) {
			if a.Token != tok {
				res.Remaining = append(res.Remaining, a)
			}
		}
		res.RoomDeleted = true
		return res, nil
	}

	s.removeMember(r, tok)
	_, stillThere := s.rooms[roomName]
	res.RoomDeleted = !stillThere
	return res, nil
}

func (s *MemoryStore) SweepInactive(timeout time.Duration, now time.Time) []domain.SweptMember {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	expired := func(m *member) bool { return now.Sub(m.lastAccess) > timeout }

	var swept []domain.SweptMember
	report := func(r *room, m *member, reason domain.SweepReason) {
		swept = append(swept, domain.SweptMember{
			RoomName: r.name,
			Token:    m.token,
			UserName: m.userName,
			Address:  m.addr,
			IsHost:   m.isHost,
			Reason:   reason,
		})
	}

	for _, name := range names {
		r := s.rooms[name]

		if h := r.host(); h != nil && expired(h) {
			for _, tok := range r.order {
				m := r.members[tok]
				if expired(m) {
					report(r, m, domain.ReasonTimedOut)
				} else {
					report(r, m, domain.ReasonRoomClosed)
				}
			}
			s.removeRoom(r)
			continue
		}

		for _, tok := range slices.Clone(r.order) {
			if m := r.members[tok]; expired(m) {
				report(r, m, domain.ReasonTimedOut)
				s.removeMember(r, tok)
			}
		}
	}
	return swept
}

func (s *MemoryStore) AllAddresses() []domain.MemberAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.MemberAddress
	for _, r := range s.rooms {
		out = append(out, r.addresses()...)
	}
	return out
}

func (s *MemoryStore) Snapshot() []domain.RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *MemoryStore) Room(roomName string) (domain.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomName]
	if !ok {
		return domain.RoomSummary{}, domain.ErrRoomNotFound
	}
	return r.summary(), nil
}
