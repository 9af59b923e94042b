package domain

type User struct {
	ID              int
	Nickname        string
	ProfileImageURL string
}
