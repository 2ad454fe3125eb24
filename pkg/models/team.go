package models

// Team groups users under an owner.
type Team struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     int64  `json:"owner_id"`
}

// TeamRequest is the creation payload for a team.
type TeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TeamSummary is a team as seen from one of its members.
type TeamSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Member joins a membership row with the user it refers to.
type Member struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
}

// TeamConfiguration holds the per-team application allow-list.
type TeamConfiguration struct {
	ID     int64    `json:"id"`
	TeamID int64    `json:"team_id"`
	Apps   []string `json:"apps"`
}
