// Package client is the Go API client for the midnight board. It keeps
// local view-models for posts and comments and mutates them through the
// optimistic toggle engine: the UI-facing state changes immediately,
// the HTTP call settles in the background, and rejected calls roll the
// state back.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"midnight/api/internal/optimistic"
)

// APIError is a non-2xx response decoded from the server's error
// envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// PostView is the client-side view-model of one post. Reaction kinds
// with a zero count are absent from the map; the aggregate count is
// always the sum over kinds.
type PostView struct {
	ID           string
	Nickname     string
	Tag          string
	Content      string
	ImageURL     string
	IsPermanent  bool
	ViewCount    int
	CommentCount int
	Reactions    map[string]int
	MyReactions  map[string]bool
	CreatedAt    time.Time
}

// ReactionTotal is the aggregate reaction count across kinds.
func (p *PostView) ReactionTotal() int {
	total := 0
	for _, count := range p.Reactions {
		total += count
	}
	return total
}

// CommentView is the client-side view-model of one comment.
type CommentView struct {
	ID        string
	PostID    string
	ParentID  string
	Nickname  string
	Content   string
	LikeCount int
	IsLiked   bool
	Replies   []*CommentView
}

// WindowState mirrors the server's gate state.
type WindowState struct {
	IsOpen      bool      `json:"isOpen"`
	NextOpenAt  time.Time `json:"nextOpenAt"`
	NextCloseAt time.Time `json:"nextCloseAt"`
	Countdown   string    `json:"countdown"`
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

type Client struct {
	baseURL string
	http    *http.Client
	engine  *optimistic.Engine

	mu           sync.Mutex
	token        string
	refreshToken string
	posts        map[string]*PostView
	comments     map[string]*CommentView
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
		engine:   optimistic.NewEngine(),
		posts:    make(map[string]*PostView),
		comments: make(map[string]*CommentView),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignIn authenticates and stores the session tokens on the client.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	c.mu.Unlock()
	return nil
}

// Authenticated reports whether the client holds a session token.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// Window fetches the current gate state.
func (c *Client) Window(ctx context.Context) (WindowState, error) {
	var state WindowState
	if err := c.doJSON(ctx, http.MethodGet, "/api/window", nil, &state); err != nil {
		return WindowState{}, err
	}
	return state, nil
}

type postWire struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	Tag          string `json:"tag"`
	Content      string `json:"content"`
	ImageURL     string `json:"imageUrl"`
	IsPermanent  bool   `json:"isPermanent"`
	ViewCount    int    `json:"viewCount"`
	CommentCount int    `json:"commentCount"`
	Reactions    []struct {
		Kind  string `json:"kind"`
		Count int    `json:"count"`
	} `json:"reactions"`
	MyReactions []string `json:"myReactions"`
	CreatedAt   string   `json:"createdAt"`
}

func (w postWire) toView() *PostView {
	view := &PostView{
		ID:           w.ID,
		Nickname:     w.Nickname,
		Tag:          w.Tag,
		Content:      w.Content,
		ImageURL:     w.ImageURL,
		IsPermanent:  w.IsPermanent,
		ViewCount:    w.ViewCount,
		CommentCount: w.CommentCount,
		Reactions:    make(map[string]int),
		MyReactions:  make(map[string]bool),
	}
	for _, rc := range w.Reactions {
		if rc.Count > 0 {
			view.Reactions[rc.Kind] = rc.Count
		}
	}
	for _, kind := range w.MyReactions {
		view.MyReactions[kind] = true
	}
	if created, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
		view.CreatedAt = created
	}
	return view
}

// LoadPost fetches one post into the local view-model cache.
func (c *Client) LoadPost(ctx context.Context, postID string) (*PostView, error) {
	var wire postWire
	if err := c.doJSON(ctx, http.MethodGet, "/api/posts/"+postID, nil, &wire); err != nil {
		return nil, err
	}
	view := wire.toView()
	c.mu.Lock()
	c.posts[view.ID] = view
	c.mu.Unlock()
	return c.PostSnapshot(view.ID), nil
}

// LoadPosts fetches the feed into the cache and returns it in feed
// order.
func (c *Client) LoadPosts(ctx context.Context, tag, sort string) ([]*PostView, error) {
	path := "/api/posts"
	query := make([]string, 0, 2)
	if tag != "" {
		query = append(query, "tag="+tag)
	}
	if sort != "" {
		query = append(query, "sort="+sort)
	}
	if len(query) > 0 {
		path += "?" + strings.Join(query, "&")
	}

	var resp struct {
		Posts []postWire `json:"posts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	views := make([]*PostView, 0, len(resp.Posts))
	c.mu.Lock()
	for _, wire := range resp.Posts {
		view := wire.toView()
		c.posts[view.ID] = view
	}
	c.mu.Unlock()
	for _, wire := range resp.Posts {
		views = append(views, c.PostSnapshot(wire.ID))
	}
	return views, nil
}

// PostSnapshot returns a copy of the cached view-model, safe to read
// while toggles settle in the background.
func (c *Client) PostSnapshot(postID string) *PostView {
	c.mu.Lock()
	defer c.mu.Unlock()
	post, ok := c.posts[postID]
	if !ok {
		return nil
	}
	snapshot := *post
	snapshot.Reactions = make(map[string]int, len(post.Reactions))
	for kind, count := range post.Reactions {
		snapshot.Reactions[kind] = count
	}
	snapshot.MyReactions = make(map[string]bool, len(post.MyReactions))
	for kind, mine := range post.MyReactions {
		snapshot.MyReactions[kind] = mine
	}
	return &snapshot
}

// reactionState is the toggled value for one post+kind: the kind's
// count and whether the viewer holds it.
type reactionState struct {
	count int
	mine  bool
}

// ToggleReaction flips the viewer's reaction locally and settles it
// against the server. Unauthenticated callers are refused before any
// local change. The returned channel yields exactly one settlement.
func (c *Client) ToggleReaction(ctx context.Context, postID, kind string) (<-chan optimistic.Settlement, error) {
	if !c.Authenticated() {
		return nil, optimistic.ErrUnauthenticated
	}
	c.mu.Lock()
	post, ok := c.posts[postID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("post %s not loaded", postID)
	}

	key := optimistic.Key{Target: postID, Kind: kind}
	toggle := optimistic.Toggle[reactionState]{
		Read: func() reactionState {
			c.mu.Lock()
			defer c.mu.Unlock()
			return reactionState{count: post.Reactions[kind], mine: post.MyReactions[kind]}
		},
		Next: func(prev reactionState) reactionState {
			if prev.mine {
				return reactionState{count: prev.count - 1, mine: false}
			}
			return reactionState{count: prev.count + 1, mine: true}
		},
		Apply: func(v reactionState) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if v.count > 0 {
				post.Reactions[kind] = v.count
			} else {
				// Zero-count kinds are dropped, not kept at zero.
				delete(post.Reactions, kind)
			}
			if v.mine {
				post.MyReactions[kind] = true
			} else {
				delete(post.MyReactions, kind)
			}
		},
		Remote: func(ctx context.Context, prev, next reactionState) error {
			return c.doJSON(ctx, http.MethodPost, "/api/posts/"+postID+"/reactions", map[string]string{"kind": kind}, nil)
		},
	}
	return optimistic.Do(ctx, c.engine, key, toggle), nil
}

type commentWire struct {
	ID        string        `json:"id"`
	PostID    string        `json:"postId"`
	ParentID  string        `json:"parentId"`
	Nickname  string        `json:"nickname"`
	Content   string        `json:"content"`
	LikeCount int           `json:"likeCount"`
	IsLiked   bool          `json:"isLiked"`
	Replies   []commentWire `json:"replies"`
}

// LoadComments fetches a post's comment tree into the cache.
func (c *Client) LoadComments(ctx context.Context, postID string) ([]*CommentView, error) {
	var resp struct {
		Comments []commentWire `json:"comments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/posts/"+postID+"/comments", nil, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	views := make([]*CommentView, 0, len(resp.Comments))
	for _, wire := range resp.Comments {
		views = append(views, c.cacheCommentLocked(wire))
	}
	return views, nil
}

func (c *Client) cacheCommentLocked(wire commentWire) *CommentView {
	view := &CommentView{
		ID:        wire.ID,
		PostID:    wire.PostID,
		ParentID:  wire.ParentID,
		Nickname:  wire.Nickname,
		Content:   wire.Content,
		LikeCount: wire.LikeCount,
		IsLiked:   wire.IsLiked,
	}
	for _, reply := range wire.Replies {
		view.Replies = append(view.Replies, c.cacheCommentLocked(reply))
	}
	c.comments[view.ID] = view
	return view
}

// CommentSnapshot returns a copy of a cached comment view-model.
func (c *Client) CommentSnapshot(commentID string) *CommentView {
	c.mu.Lock()
	defer c.mu.Unlock()
	comment, ok := c.comments[commentID]
	if !ok {
		return nil
	}
	snapshot := *comment
	return &snapshot
}

type likeState struct {
	count int
	liked bool
}

// ToggleCommentLike flips the viewer's like on a comment through the
// optimistic engine.
func (c *Client) ToggleCommentLike(ctx context.Context, commentID string) (<-chan optimistic.Settlement, error) {
	if !c.Authenticated() {
		return nil, optimistic.ErrUnauthenticated
	}
	c.mu.Lock()
	comment, ok := c.comments[commentID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("comment %s not loaded", commentID)
	}

	key := optimistic.Key{Target: commentID, Kind: "like"}
	toggle := optimistic.Toggle[likeState]{
		Read: func() likeState {
			c.mu.Lock()
			defer c.mu.Unlock()
			return likeState{count: comment.LikeCount, liked: comment.IsLiked}
		},
		Next: func(prev likeState) likeState {
			if prev.liked {
				return likeState{count: prev.count - 1, liked: false}
			}
			return likeState{count: prev.count + 1, liked: true}
		},
		Apply: func(v likeState) {
			c.mu.Lock()
			defer c.mu.Unlock()
			comment.LikeCount = v.count
			comment.IsLiked = v.liked
		},
		Remote: func(ctx context.Context, prev, next likeState) error {
			return c.doJSON(ctx, http.MethodPost, "/api/comments/"+commentID+"/likes", nil, nil)
		},
	}
	return optimistic.Do(ctx, c.engine, key, toggle), nil
}

// RecordView reports a view of the post; the server dedups per viewer.
func (c *Client) RecordView(ctx context.Context, postID string) (bool, error) {
	var resp struct {
		Counted bool `json:"counted"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/posts/"+postID+"/view", nil, &resp); err != nil {
		return false, err
	}
	return resp.Counted, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		if resp.StatusCode == http.StatusUnauthorized {
			return optimistic.ErrUnauthenticated
		}
		return &APIError{Status: resp.StatusCode, Code: envelope.Code, Message: envelope.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
