package domain

type RoomID int

// Room is the summary of one conversation as shown in the room list.
// Summaries are fetched in bulk on connect and mutated in place afterwards.
type Room struct {
	ID           RoomID
	Listing      Listing
	Participants []Participant
	LastMessage  *Message
	UnreadCount  int
	// Inactive is set when the counterpart has left the room. The room stays
	// browsable; sending is disabled by the presentation layer.
	Inactive bool
}

type Participant struct {
	User User
}

// Listing is the marketplace item the conversation is attached to.
type Listing struct {
	ID       int
	Title    string
	ImageURL string
}

// Opponent returns the participant that is not the given user.
func (r Room) Opponent(selfID int) (User, bool) {
	for _, p := range r.Participants {
		if p.User.ID != selfID {
			return p.User, true
		}
	}
	return User{}, false
}
