package server

import (
	"net/http"

	campus "github.com/campushq/campus/internal"
)

type subscriptionResponse struct {
	Subscribed   bool                 `json:"subscribed"`
	Subscription *campus.Subscription `json:"subscription,omitempty"`
}

type reactionResponse struct {
	Reacted  bool             `json:"reacted"`
	Reaction *campus.Reaction `json:"reaction,omitempty"`
}

type reactRequest struct {
	Type string `json:"type"`
}

// --- Subscriptions ---

func (s *server) handleSubscriberCount(w http.ResponseWriter, r *http.Request) {
	communityID, ok := pathID(w, r, "communityID")
	if !ok {
		return
	}
	count, err := s.deps.Subscriptions.SubscriberCount(r.Context(), communityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (s *server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	communityID, ok := pathID(w, r, "communityID")
	if !ok {
		return
	}
	sub, err := s.deps.Subscriptions.UserSubscription(r.Context(), caller(r).UserID, communityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{Subscribed: sub != nil, Subscription: sub})
}

func (s *server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	communityID, ok := pathID(w, r, "communityID")
	if !ok {
		return
	}
	sub, err := s.deps.Subscriptions.Subscribe(r.Context(), caller(r).UserID, communityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{Subscribed: true, Subscription: sub})
}

func (s *server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	communityID, ok := pathID(w, r, "communityID")
	if !ok {
		return
	}
	if err := s.deps.Subscriptions.Unsubscribe(r.Context(), caller(r).UserID, communityID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteCommunity(w http.ResponseWriter, r *http.Request) {
	communityID, ok := pathID(w, r, "communityID")
	if !ok {
		return
	}
	if err := s.deps.Subscriptions.DeleteCommunity(r.Context(), communityID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Reactions ---

func (s *server) handleReactionCount(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	count, err := s.deps.Reactions.ReactionCount(r.Context(), postID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (s *server) handleGetReaction(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	rc, err := s.deps.Reactions.UserReaction(r.Context(), caller(r).UserID, postID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reactionResponse{Reacted: rc != nil, Reaction: rc})
}

func (s *server) handleReact(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	var req reactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rc, err := s.deps.Reactions.React(r.Context(), caller(r).UserID, postID, req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reactionResponse{Reacted: true, Reaction: rc})
}

func (s *server) handleUnreact(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	if err := s.deps.Reactions.Unreact(r.Context(), caller(r).UserID, postID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	if err := s.deps.Reactions.DeletePost(r.Context(), postID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
