package models

import "time"

// Player is a room member. Owned exclusively by its Room; never shared
// across rooms.
type Player struct {
	UserID      string    `json:"user_id"`
	Nickname    string    `json:"nickname"`
	Score       int       `json:"score"`
	Order       int       `json:"order"`
	Elo         int       `json:"elo"`
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joined_at"`
	SeenWordIDs map[string]bool
}

// MarkSeen records a word as drawn for this player.
func (p *Player) MarkSeen(wordID string) {
	if p.SeenWordIDs == nil {
		p.SeenWordIDs = make(map[string]bool)
	}
	p.SeenWordIDs[wordID] = true
}

// SeenWords returns the seen set as a slice for repository queries.
func (p *Player) SeenWords() []string {
	ids := make([]string, 0, len(p.SeenWordIDs))
	for id := range p.SeenWordIDs {
		ids = append(ids, id)
	}
	return ids
}

// PlayerStats is the persistent aggregate record behind a player.
type PlayerStats struct {
	PlayerID          string    `json:"player_id"`
	Nickname          string    `json:"nickname"`
	Elo               int       `json:"elo"`
	Wins              int       `json:"wins"`
	Losses            int       `json:"losses"`
	TotalGames        int       `json:"total_games"`
	TotalMoves        int       `json:"total_moves"`
	TotalResponseTime float64   `json:"total_response_time"`
	CreatedAt         time.Time `json:"created_at"`
}

// WinRate returns wins over total games, zero when no games were played.
func (s PlayerStats) WinRate() float64 {
	if s.TotalGames == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalGames)
}

// AvgResponseTime returns the mean seconds per move, zero with no moves.
func (s PlayerStats) AvgResponseTime() float64 {
	if s.TotalMoves == 0 {
		return 0
	}
	return s.TotalResponseTime / float64(s.TotalMoves)
}
