package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/domain"
)

const selfID = 1

func message(id int, room domain.RoomID, sender int, at time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		RoomID:    room,
		Sender:    domain.User{ID: sender, Nickname: "user"},
		Content:   "hello",
		CreatedAt: at,
	}
}

func TestSummary_ApplyMessage_SortsByLastMessageDesc(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	s := NewSummary(selfID)
	s.Replace([]domain.Room{{ID: 1}, {ID: 2}, {ID: 3}})

	// When messages arrive out of room order
	s.ApplyMessage(message(10, 2, 7, now.Add(1*time.Minute)), false)
	s.ApplyMessage(message(11, 1, 7, now.Add(2*time.Minute)), false)

	// Then the most recently active room is first
	rooms := s.Rooms()
	req.Equal(domain.RoomID(1), rooms[0].ID)
	req.Equal(domain.RoomID(2), rooms[1].ID)

	// And rooms without any message sort last
	req.Equal(domain.RoomID(3), rooms[2].ID)
	req.Nil(rooms[2].LastMessage)
}

func TestSummary_RoomsWithoutMessages_KeepStableOrder(t *testing.T) {
	req := require.New(t)
	s := NewSummary(selfID)
	s.Replace([]domain.Room{{ID: 5}, {ID: 6}, {ID: 7}})

	s.ApplyMessage(message(1, 6, 2, time.Now()), false)

	rooms := s.Rooms()
	req.Equal(domain.RoomID(6), rooms[0].ID)
	req.Equal(domain.RoomID(5), rooms[1].ID)
	req.Equal(domain.RoomID(7), rooms[2].ID)
}

func TestSummary_UnreadCount_IncrementsOnlyForQualifyingMessages(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	s := NewSummary(selfID)
	s.Replace([]domain.Room{{ID: 7}})

	// Given two messages from someone else while the room is not viewed
	s.ApplyMessage(message(1, 7, 2, now), false)
	s.ApplyMessage(message(2, 7, 2, now.Add(time.Second)), false)

	room, ok := s.Room(7)
	req.True(ok)
	req.Equal(2, room.UnreadCount)

	// When the room is marked read
	s.MarkRead(7)
	room, _ = s.Room(7)
	req.Equal(0, room.UnreadCount)

	// Then a self-sent message while viewing leaves the counter at zero
	s.ApplyMessage(message(3, 7, selfID, now.Add(2*time.Second)), true)
	room, _ = s.Room(7)
	req.Equal(0, room.UnreadCount)
}

func TestSummary_ApplyMessage_SelfSentNeverIncrements(t *testing.T) {
	req := require.New(t)
	s := NewSummary(selfID)
	s.Replace([]domain.Room{{ID: 3}})

	// Self-sent while the room is not even open
	s.ApplyMessage(message(1, 3, selfID, time.Now()), false)

	room, _ := s.Room(3)
	req.Equal(0, room.UnreadCount)
	req.NotNil(room.LastMessage)
}

func TestSummary_ApplyMessage_ViewedRoomNeverIncrements(t *testing.T) {
	req := require.New(t)
	s := NewSummary(selfID)
	s.Replace([]domain.Room{{ID: 3}})

	s.ApplyMessage(message(1, 3, 9, time.Now()), true)

	room, _ := s.Room(3)
	req.Equal(0, room.UnreadCount)
}

func TestSummary_Upsert_DeduplicatesAnnouncedRooms(t *testing.T) {
	req := require.New(t)
	s := NewSummary(selfID)

	s.Upsert(domain.Room{ID: 4})
	s.Upsert(domain.Room{ID: 4, UnreadCount: 1})

	rooms := s.Rooms()
	req.Len(rooms, 1)
	req.Equal(1, rooms[0].UnreadCount)
}

func TestSummary_Replace_PreservesLocalInactiveFlags(t *testing.T) {
	req := require.New(t)
	s := NewSummary(selfID)
	s.Replace([]domain.Room{{ID: 1}, {ID: 2}})
	s.SetInactive(2, true)

	// When a fresh list without inactive information is fetched
	s.Replace([]domain.Room{{ID: 1}, {ID: 2}})

	room, _ := s.Room(2)
	req.True(room.Inactive)
}

func TestSummary_Remove_DropsRoom(t *testing.T) {
	req := require.New(t)
	s := NewSummary(selfID)
	s.Replace([]domain.Room{{ID: 1}, {ID: 2}})

	s.Remove(1)

	req.Equal([]domain.RoomID{2}, s.RoomIDs())
	_, ok := s.Room(1)
	req.False(ok)
}
