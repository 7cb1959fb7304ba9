package backend

import (
	"context"
	"net/http"
	"net/url"

	campus "github.com/campushq/campus/internal"
)

// ProfilesClient reads public user profiles.
type ProfilesClient struct {
	c *Client
}

// NewProfilesClient wraps c, which must point at the profiles service.
func NewProfilesClient(c *Client) *ProfilesClient {
	return &ProfilesClient{c: c}
}

// Profile returns the profile of userID. The error wraps campus.ErrNotFound
// for unknown users.
func (pc *ProfilesClient) Profile(ctx context.Context, userID string) (*campus.Profile, error) {
	var out campus.Profile
	if err := pc.c.do(ctx, "profile", http.MethodGet, "/profiles/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
