package store

import "time"

type User struct {
	ID                    string
	Nickname              string
	Email                 string
	PasswordHash          string
	Role                  string
	AvatarURL             string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Post struct {
	ID             string
	AuthorID       string
	AuthorNickname string
	Tag            string
	Body           string
	ImageURL       string
	IsPermanent    bool
	ViewCount      int
	CommentCount   int
	ReactionCounts []ReactionCount
	MyReactions    []string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
}

// ReactionTotal reports the aggregate reaction count of a post, the
// sum over its per-kind counts.
func (p Post) ReactionTotal() int {
	total := 0
	for _, rc := range p.ReactionCounts {
		total += rc.Count
	}
	return total
}

type ReactionCount struct {
	Kind  string
	Count int
}

type Comment struct {
	ID             string
	PostID         string
	ParentID       *string
	AuthorID       string
	AuthorNickname string
	Body           string
	LikeCount      int
	LikedByMe      bool
	CreatedAt      time.Time
	Replies        []Comment
}

type Report struct {
	ID         string
	ReporterID string
	TargetType string
	TargetID   string
	Reason     string
	Detail     string
	Status     string
	CreatedAt  time.Time
}

// PostFilter narrows and orders a post listing. Sort is one of
// "latest", "reactions" or "views"; an empty Tag matches every tag.
type PostFilter struct {
	Tag    string
	Sort   string
	Limit  int
	Offset int
}
