package app

import (
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
)

type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[core.SessionID]core.ClassRoom
}

func NewRoomManager() core.RoomManager {
	return &RoomManagerImpl{rooms: make(map[core.SessionID]core.ClassRoom)}
}

func (f *RoomManagerImpl) GetOrCreate(id core.SessionID) core.ClassRoom {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewClassRoom(id)
	f.rooms[id] = room
	return room
}

func (f *RoomManagerImpl) GetRoom(id core.SessionID) (core.ClassRoom, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) StopRoom(id core.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}

func (f *RoomManagerImpl) JoinRoom(id core.SessionID, ms core.MemberSession) (core.ClassRoom, domain.NegotiationRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		room = core.NewClassRoom(id)
		f.rooms[id] = room
	}
	role, err := room.Join(ms)
	if err != nil {
		if room.MemberCount() == 0 {
			delete(f.rooms, id)
		}
		return nil, domain.NegotiationUnknown, err
	}
	return room, role, nil
}

func (f *RoomManagerImpl) LeaveRoom(id core.SessionID, uid domain.UserID, ms core.MemberSession) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return false
	}
	removed := room.Leave(uid, ms)
	if room.MemberCount() == 0 {
		delete(f.rooms, id)
	}
	return removed
}
