// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package roomsync drives verify/merge cycles over room state for a set of
// rooms. The state core is pure and synchronous; everything stateful about
// synchronization lives here: per-room serialization, rejection logging,
// duplicate-delta suppression and the poisoning of rooms whose merge broke
// an internal invariant.
//
// Local edits and remote deltas take the same path through Apply, so the
// local user can never produce state a peer would reject.
package roomsync

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/cache"
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/roomstate/room"
	"github.com/luxfi/roomstate/scaffold"
	"github.com/luxfi/roomstate/utils/hashing"
	"github.com/luxfi/roomstate/utils/timer/mockable"
)

const appliedCacheSize = 2048

var (
	ErrUnknownRoom   = errors.New("unknown room")
	ErrDuplicateRoom = errors.New("room already tracked")
	ErrRoomPoisoned  = errors.New("room poisoned by a broken merge invariant")
)

type trackedRoom struct {
	mu       sync.Mutex
	params   room.Parameters
	state    *room.State
	poisoned bool
}

// Manager tracks rooms and presents each verify→merge cycle to the state
// core as an atomic step. Cycles for distinct rooms run concurrently;
// cycles for the same room are serialized, since merge is not safe against
// a concurrently mutated value.
type Manager struct {
	log     log.Logger
	clock   mockable.Clock
	metrics *syncMetrics

	mu    sync.RWMutex
	rooms map[ids.ID]*trackedRoom

	// applied suppresses re-parsing and re-merging deltas this replica has
	// already merged; replaying them would be a harmless no-op, merges
	// being idempotent.
	applied *cache.LRU[ids.ID, struct{}]
}

func NewManager(logger log.Logger, registerer metric.Registerer) (*Manager, error) {
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Manager{
		log:     logger,
		metrics: metrics,
		rooms:   map[ids.ID]*trackedRoom{},
		applied: &cache.LRU[ids.ID, struct{}]{Size: appliedCacheSize},
	}, nil
}

// Clock returns the clock that timestamps locally created records; tests
// pin it to make those timestamps deterministic.
func (m *Manager) Clock() *mockable.Clock {
	return &m.clock
}

// SendMessage signs a message from the local user, timestamped by the
// manager's clock, and merges it through the same verify path a remote
// delta takes; the local user can never produce state a peer would reject.
func (m *Manager) SendMessage(roomID ids.ID, content string, authorKey *secp256k1.PrivateKey) error {
	tr, err := m.room(roomID)
	if err != nil {
		return err
	}
	msg, err := room.NewSignedMessage(&tr.params, content, m.clock.UnixMilli(), authorKey)
	if err != nil {
		return err
	}
	delta := room.Delta{Messages: []room.SignedMessage{msg}}
	b, err := delta.Bytes()
	if err != nil {
		return err
	}
	return m.Apply(roomID, b)
}

// CreateRoom starts tracking a freshly created room: default configuration,
// empty leaves, owner fixed by params.
func (m *Manager) CreateRoom(params room.Parameters) (ids.ID, error) {
	return m.track(params, room.NewState())
}

// JoinRoom starts tracking a room from a full serialized state received
// from a peer. The state is verified before it is accepted.
func (m *Manager) JoinRoom(params room.Parameters, stateBytes []byte) (ids.ID, error) {
	state, err := room.ParseState(stateBytes)
	if err != nil {
		return ids.Empty, err
	}
	if err := state.Verify(state, &params); err != nil {
		return ids.Empty, err
	}
	return m.track(params, state)
}

func (m *Manager) track(params room.Parameters, state *room.State) (ids.ID, error) {
	if err := params.Verify(); err != nil {
		return ids.Empty, err
	}
	roomID, err := params.RoomID()
	if err != nil {
		return ids.Empty, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; ok {
		return ids.Empty, fmt.Errorf("%w: %s", ErrDuplicateRoom, roomID)
	}
	m.rooms[roomID] = &trackedRoom{
		params: params,
		state:  state,
	}
	m.log.Info("tracking room",
		log.Stringer("roomID", roomID),
		log.Stringer("owner", params.Owner),
	)
	return roomID, nil
}

func (m *Manager) room(roomID ids.ID) (*trackedRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	return tr, nil
}

// Summary returns the room's current summary in wire form.
func (m *Manager) Summary(roomID ids.ID) ([]byte, error) {
	tr, err := m.room(roomID)
	if err != nil {
		return nil, err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	summary := tr.state.Summarize(tr.state, &tr.params)
	return summary.Bytes()
}

// DeltaFor computes the wire-form delta bringing a peer at peerSummary up
// to this replica's state. The boolean is false when the peer is current.
func (m *Manager) DeltaFor(roomID ids.ID, peerSummary []byte) ([]byte, bool, error) {
	tr, err := m.room(roomID)
	if err != nil {
		return nil, false, err
	}
	summary, err := room.ParseSummary(peerSummary)
	if err != nil {
		return nil, false, err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	delta, changed := tr.state.Delta(tr.state, &tr.params, summary)
	if !changed {
		return nil, false, nil
	}
	b, err := delta.Bytes()
	return b, err == nil, err
}

// Apply verifies and merges a wire-form delta, local or remote. Rejections
// leave the room untouched; a broken merge invariant poisons the room so
// the corrupt value is never persisted or served.
func (m *Manager) Apply(roomID ids.ID, deltaBytes []byte) error {
	digest := deltaDigest(roomID, deltaBytes)
	if _, ok := m.applied.Get(digest); ok {
		return nil
	}

	tr, err := m.room(roomID)
	if err != nil {
		return err
	}
	delta, err := room.ParseDelta(deltaBytes)
	if err != nil {
		m.metrics.numRejected.Inc()
		return err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.poisoned {
		return fmt.Errorf("%w: %s", ErrRoomPoisoned, roomID)
	}

	if err := tr.state.ApplyDelta(tr.state, &tr.params, *delta); err != nil {
		switch {
		case errors.Is(err, scaffold.ErrInternalInvariant):
			tr.poisoned = true
			m.metrics.numPoisoned.Inc()
			m.log.Error("merge broke an internal invariant; halting room",
				log.Stringer("roomID", roomID),
				log.Err(err),
			)
		case errors.Is(err, scaffold.ErrUnauthorized):
			m.metrics.numRejected.Inc()
			m.log.Warn("rejected unauthorized delta",
				log.Stringer("roomID", roomID),
				log.Err(err),
			)
		default:
			m.metrics.numRejected.Inc()
			m.log.Debug("rejected delta",
				log.Stringer("roomID", roomID),
				log.Err(err),
			)
		}
		return err
	}

	m.applied.Put(digest, struct{}{})
	m.metrics.numApplied.Inc()
	m.log.Debug("merged delta",
		log.Stringer("roomID", roomID),
		log.Int("bytes", len(deltaBytes)),
	)
	return nil
}

// RoomState returns a read-only projection of the room's current state.
// The copy is deep: holding it never blocks or observes later merges.
func (m *Manager) RoomState(roomID ids.ID) (*room.State, error) {
	tr, err := m.room(roomID)
	if err != nil {
		return nil, err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.state.Clone(), nil
}

// RoomBytes returns the room's full serialized state, the form handed to
// the contract/storage layer for persistence.
func (m *Manager) RoomBytes(roomID ids.ID) ([]byte, error) {
	tr, err := m.room(roomID)
	if err != nil {
		return nil, err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.poisoned {
		return nil, fmt.Errorf("%w: %s", ErrRoomPoisoned, roomID)
	}
	return tr.state.Bytes()
}

func deltaDigest(roomID ids.ID, deltaBytes []byte) ids.ID {
	buf := make([]byte, 0, len(roomID)+len(deltaBytes))
	buf = append(buf, roomID[:]...)
	buf = append(buf, deltaBytes...)
	return hashing.ComputeHash256Array(buf)
}
