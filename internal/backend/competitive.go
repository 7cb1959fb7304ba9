package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	campus "github.com/campushq/campus/internal"
)

// CompetitiveClient reads the competitive-programming leaderboard.
type CompetitiveClient struct {
	c *Client
}

// NewCompetitiveClient wraps c, which must point at the competitive service.
func NewCompetitiveClient(c *Client) *CompetitiveClient {
	return &CompetitiveClient{c: c}
}

type leaderboardResponse struct {
	Entries []campus.LeaderboardEntry `json:"entries"`
	Total   int64                     `json:"total"`
}

// Leaderboard returns the rows of the given 1-based page, without profiles,
// and the total number of ranked users.
func (cc *CompetitiveClient) Leaderboard(ctx context.Context, page, pageSize int) ([]campus.LeaderboardEntry, int64, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	var out leaderboardResponse
	if err := cc.c.do(ctx, "leaderboard", http.MethodGet, "/leaderboard?"+q.Encode(), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Entries, out.Total, nil
}

// UserRank returns the leaderboard row of userID. The error wraps
// campus.ErrNotFound for unranked users.
func (cc *CompetitiveClient) UserRank(ctx context.Context, userID string) (*campus.LeaderboardEntry, error) {
	var out campus.LeaderboardEntry
	if err := cc.c.do(ctx, "user_rank", http.MethodGet, "/leaderboard/users/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
