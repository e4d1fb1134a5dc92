package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/service"
)

// SocialHandler serves the logged-in web surface: timelines, profiles,
// following and private messages. Every route sits behind
// middleware.RequireLogin.
type SocialHandler struct {
	identity  *service.IdentityService
	graph     *service.GraphService
	content   *service.ContentService
	messaging *service.MessagingService
	docs      documents
	logger    *slog.Logger
}

func NewSocialHandler(
	identity *service.IdentityService,
	graph *service.GraphService,
	content *service.ContentService,
	messaging *service.MessagingService,
	logger *slog.Logger,
) *SocialHandler {
	return &SocialHandler{
		identity:  identity,
		graph:     graph,
		content:   content,
		messaging: messaging,
		docs:      documents{graph: graph, content: content},
		logger:    logger,
	}
}

type homeResponse struct {
	Posts          []model.Post `json:"posts"`
	UnreadMessages int          `json:"unread_messages"`
}

// HandleHome returns the home timeline: the user's own posts and those of
// everyone they follow.
//
// HTTP: GET / and GET /index
func (h *SocialHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	posts, err := h.content.Timeline(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	unread, err := h.messaging.UnreadCount(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, homeResponse{Posts: nonNil(posts), UnreadMessages: unread})
}

// HandlePost publishes a post.
//
// HTTP: POST /index
// REQUEST BODY: post
func (h *SocialHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	f, err := readFields(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	post, err := h.content.CreatePost(r.Context(), user, f.get("post"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Message string      `json:"message"`
		Post    *model.Post `json:"post"`
	}{"Your post is now live!", post})
}

// HandleExplore returns recent posts from everyone.
//
// HTTP: GET /explore
func (h *SocialHandler) HandleExplore(w http.ResponseWriter, r *http.Request) {
	posts, err := h.content.Explore(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Posts []model.Post `json:"posts"`
	}{nonNil(posts)})
}

type profileResponse struct {
	User        *UserDocument `json:"user"`
	Posts       []model.Post  `json:"posts"`
	IsFollowing bool          `json:"is_following"`
}

// HandleProfile returns a user's profile and posts.
//
// HTTP: GET /user/{username}
func (h *SocialHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	viewer, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ctx := r.Context()

	user, err := h.identity.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	doc, err := h.docs.user(ctx, user, viewer)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	posts, err := h.content.UserPosts(ctx, user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	following := false
	if viewer.ID != user.ID {
		if following, err = h.graph.IsFollowing(ctx, viewer.ID, user.ID); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, profileResponse{User: doc, Posts: nonNil(posts), IsFollowing: following})
}

// HandleEditProfile changes the current user's username and about-me text.
// A blank username keeps the current one.
//
// HTTP: POST /edit_profile
// REQUEST BODY: username, about_me
func (h *SocialHandler) HandleEditProfile(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	f, err := readFields(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	username := f.get("username")
	if username == "" {
		username = user.Username
	}
	updated, err := h.identity.UpdateProfile(r.Context(), user.ID, username, f.get("about_me"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	doc, err := h.docs.user(r.Context(), updated, updated)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string        `json:"message"`
		User    *UserDocument `json:"user"`
	}{"Your changes have been saved.", doc})
}

// HandleFollow makes the current user follow {username}.
//
// HTTP: POST /follow/{username}
func (h *SocialHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	target, err := h.graph.Follow(r.Context(), user, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("You are following %s!", target.Username))
}

// HandleUnfollow removes the edge; unfollowing someone not followed is fine.
//
// HTTP: POST /unfollow/{username}
func (h *SocialHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	target, err := h.graph.Unfollow(r.Context(), user, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("You are not following %s.", target.Username))
}

// HandleSendMessage sends a private message to {username}.
//
// HTTP: POST /send_message/{username}
// REQUEST BODY: message
func (h *SocialHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	f, err := readFields(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	msg, err := h.messaging.SendMessage(r.Context(), user, chi.URLParam(r, "username"), f.get("message"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Message string         `json:"message"`
		Sent    *model.Message `json:"sent"`
	}{"Your message has been sent.", msg})
}

// HandleMessages returns the inbox, newest first, and marks it read. Each
// message carries the read state it had before this request.
//
// HTTP: GET /messages
func (h *SocialHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	msgs, err := h.messaging.ReadInbox(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Messages []model.Message `json:"messages"`
	}{nonNil(msgs)})
}
