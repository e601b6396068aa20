package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"midnight/api/internal/auth"
	"midnight/api/internal/authpw"
	"midnight/api/internal/config"
	"midnight/api/internal/email"
	"midnight/api/internal/media"
	"midnight/api/internal/rbac"
	"midnight/api/internal/search"
	"midnight/api/internal/session"
	"midnight/api/internal/store"
	"midnight/api/internal/util"
	"midnight/api/internal/window"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Nickname     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type CreatePostInput struct {
	Tag         string `json:"tag"`
	Content     string `json:"content"`
	ImageURL    string `json:"imageUrl"`
	IsPermanent bool   `json:"isPermanent"`
}

type CreateCommentInput struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parentId"`
}

type CreateReportInput struct {
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail"`
}

type UpdateProfileInput struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
}

const (
	maxPostRunes    = 500
	maxCommentRunes = 300
	maxDetailRunes  = 500
)

var allowedTags = map[string]struct{}{
	"monologue": {},
	"comfort":   {},
	"shout":     {},
	"emotion":   {},
	"food":      {},
	"music":     {},
}

var allowedReactionKinds = map[string]struct{}{
	"hand-heart": {},
	"heart":      {},
	"moon":       {},
	"smile":      {},
	"beer":       {},
	"coffee":     {},
}

var allowedReportReasons = map[string]struct{}{
	"spam":          {},
	"abuse":         {},
	"harassment":    {},
	"inappropriate": {},
	"copyright":     {},
	"other":         {},
}

var allowedReportTargets = map[string]struct{}{
	"post":    {},
	"comment": {},
}

var allowedSorts = map[string]struct{}{
	"latest":    {},
	"reactions": {},
	"views":     {},
}

var allowedReportStatuses = map[string]struct{}{
	"pending":   {},
	"reviewed":  {},
	"dismissed": {},
}

type dataStore interface {
	Ping(context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	UpdateProfile(ctx context.Context, userID, nickname, avatarURL string) error
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	InsertPost(context.Context, store.Post) error
	GetPost(ctx context.Context, postID, viewerID string) (store.Post, error)
	ListPosts(ctx context.Context, filter store.PostFilter, viewerID string) ([]store.Post, error)
	HotPosts(ctx context.Context, limit int, viewerID string) ([]store.Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]store.Post, error)
	ListReactedPosts(ctx context.Context, userID string) ([]store.Post, error)
	ListCommentedPosts(ctx context.Context, userID string) ([]store.Post, error)
	DeletePost(ctx context.Context, postID, authorID string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	ToggleReaction(ctx context.Context, postID, userID, kind string) (bool, error)
	RecordView(ctx context.Context, postID, viewerKey string) (bool, error)
	InsertComment(context.Context, store.Comment) error
	GetComment(ctx context.Context, commentID, viewerID string) (store.Comment, error)
	ListComments(ctx context.Context, postID, viewerID string) ([]store.Comment, error)
	DeleteComment(ctx context.Context, commentID, authorID string) (bool, error)
	ToggleCommentLike(ctx context.Context, commentID, userID string) (bool, error)
	InsertReport(context.Context, store.Report) error
	RecentReports(ctx context.Context, limit int) ([]store.Report, error)
	UpdateReportStatus(ctx context.Context, reportID, status string) (bool, error)
	GetDevMode(context.Context) (bool, error)
	SummaryCounts(context.Context) (int, int, int, error)
}

type refreshCache interface {
	SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeSession(ctx context.Context, tokenHash string) error
	Ping(context.Context) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexPost(p search.PostRecord)
	DeletePost(id string)
	ReindexAllFromPG(ctx context.Context)
}

type imageStore interface {
	UploadPostImage(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (media.UploadResult, error)
	UploadProfileImage(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (media.UploadResult, error)
	RemoveByURL(ctx context.Context, rawURL string) error
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, nickname, verificationURL string) error
	SendPasswordResetEmail(to, nickname, resetURL string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshCache
	search   searchIndex
	media    imageStore
	email    mailer
	authpw   *authpw.Service
	windows  *window.Controller
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	sessions *session.RedisStore,
	searchSvc *search.Service,
	mediaSvc *media.Service,
	emailSvc *email.Service,
	authSvc *authpw.Service,
	windows *window.Controller,
) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		search:   searchSvc,
		media:    mediaSvc,
		email:    emailSvc,
		authpw:   authSvc,
		windows:  windows,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	if s.sessions == nil {
		return errors.New("session store not configured")
	}
	return s.sessions.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// SignUp creates the account and dispatches the verification email
// when SMTP is configured.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	if req.Nickname != "" {
		if err := validateNickname(req.Nickname); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
	}
	resp, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.SMTPConfigured() {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.cfg.AppURL, "/"), resp.VerificationToken)
		if err := s.email.SendVerificationEmail(req.Email, resp.Nickname, verifyURL); err != nil {
			log.Printf("app: send verification email: %v", err)
		}
	}
	return resp, nil
}

// RequestPasswordReset issues a reset token and mails it when SMTP is
// configured. The token is returned so dev setups without SMTP can
// surface it.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (string, error) {
	token, err := s.authpw.RequestPasswordReset(ctx, emailAddr)
	if err != nil || token == "" {
		return "", err
	}
	if s.SMTPConfigured() {
		user, lookupErr := s.authpw.UserByEmail(ctx, emailAddr)
		if lookupErr == nil {
			resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.AppURL, "/"), token)
			if sendErr := s.email.SendPasswordResetEmail(emailAddr, user.Nickname, resetURL); sendErr != nil {
				log.Printf("app: send password reset email: %v", sendErr)
			}
		}
	}
	return token, nil
}

// CreateSession issues an access token and a refresh token for the
// user. The refresh token is written through to both Redis and
// Postgres; lookups prefer Redis and fall back to the database.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Nickname: user.Nickname,
		Role:     user.Role,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshHash := auth.HashToken(refresh)
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.store.SaveRefreshSession(ctx, refreshHash, user.ID, refreshExpires); err != nil {
		return Session{}, err
	}
	if s.sessions != nil {
		if err := s.sessions.SaveSession(ctx, refreshHash, user, refreshExpires); err != nil {
			log.Printf("app: cache refresh session: %v", err)
		}
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Nickname:     user.Nickname,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)

	var user store.User
	var err error
	if s.sessions != nil {
		user, err = s.sessions.LookupSession(ctx, tokenHash)
	} else {
		err = errors.New("no session cache")
	}
	if err != nil {
		user, err = s.store.LookupRefreshSession(ctx, tokenHash)
		if err != nil {
			return Session{}, err
		}
	}

	if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if s.sessions != nil {
		_ = s.sessions.RevokeSession(ctx, tokenHash)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Nickname:  user.Nickname,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		tokenHash := auth.HashToken(refreshToken)
		_ = s.store.RevokeRefreshSession(ctx, tokenHash)
		if s.sessions != nil {
			_ = s.sessions.RevokeSession(ctx, tokenHash)
		}
	}
	return nil
}

// WindowState reports the board's current gate state. Everyone sees
// the same answer: the computation runs in the reference zone.
func (s *Service) WindowState() map[string]any {
	state := s.windows.State()
	return map[string]any{
		"isOpen":      state.IsOpen,
		"nextOpenAt":  state.NextOpenAt.Format(time.RFC3339),
		"nextCloseAt": state.NextCloseAt.Format(time.RFC3339),
		"countdown":   window.FormatTimeLeft(state.TimeLeft),
	}
}

// WindowOpenFor reports whether the viewer may use the gated surface
// right now. Moderators and admins are never locked out.
func (s *Service) WindowOpenFor(role string) bool {
	if rbac.BypassesWindow(rbac.Normalize(role)) {
		return true
	}
	return s.windows.State().IsOpen
}

// ViewerKey identifies a viewer for view-count dedup. Signed-in users
// count by account; anonymous viewers by salted IP hash.
func (s *Service) ViewerKey(sess Session, remoteAddr string) string {
	if sess.UserID != "" {
		return sess.UserID
	}
	return "ip:" + util.HashIP(s.cfg.JWTSecret, remoteAddr)
}

// ---- posts ----

func (s *Service) CreatePost(ctx context.Context, sess Session, input CreatePostInput) (map[string]any, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxPostRunes {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("content must be at most %d characters", maxPostRunes), nil)
	}
	if _, ok := allowedTags[input.Tag]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown tag", nil)
	}

	post := store.Post{
		ID:          util.NewID("post"),
		AuthorID:    sess.UserID,
		Tag:         input.Tag,
		Body:        content,
		ImageURL:    strings.TrimSpace(input.ImageURL),
		IsPermanent: input.IsPermanent,
	}
	if !post.IsPermanent {
		closeAt := s.windows.State().NextCloseAt
		post.ExpiresAt = &closeAt
	}

	if err := s.store.InsertPost(ctx, post); err != nil {
		return nil, err
	}

	s.search.IndexPost(search.PostRecord{
		ID:       post.ID,
		Body:     post.Body,
		Tag:      post.Tag,
		Nickname: sess.Nickname,
	})

	created, err := s.store.GetPost(ctx, post.ID, sess.UserID)
	if err != nil {
		return nil, err
	}
	return postPayload(created), nil
}

func (s *Service) ListPosts(ctx context.Context, viewerID, tag, sort string, limit, offset int) (map[string]any, error) {
	if tag != "" {
		if _, ok := allowedTags[tag]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown tag", nil)
		}
	}
	if sort == "" {
		sort = "latest"
	}
	if _, ok := allowedSorts[sort]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "sort must be latest, reactions or views", nil)
	}

	posts, err := s.store.ListPosts(ctx, store.PostFilter{
		Tag:    tag,
		Sort:   sort,
		Limit:  clampLimit(limit),
		Offset: max(offset, 0),
	}, viewerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"posts": postPayloads(posts)}, nil
}

func (s *Service) HotPosts(ctx context.Context, viewerID string, limit int) (map[string]any, error) {
	posts, err := s.store.HotPosts(ctx, clampLimit(limit), viewerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"posts": postPayloads(posts)}, nil
}

func (s *Service) GetPost(ctx context.Context, postID, viewerID string) (map[string]any, error) {
	post, err := s.store.GetPost(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}
	return postPayload(post), nil
}

func (s *Service) DeletePost(ctx context.Context, sess Session, postID string) error {
	post, err := s.store.GetPost(ctx, postID, sess.UserID)
	if err != nil {
		return err
	}
	if post.AuthorID != sess.UserID && !s.Can(sess.Role, rbac.ActionModerate) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author may delete this post", nil)
	}

	deleted, err := s.store.DeletePost(ctx, postID, post.AuthorID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}

	s.search.DeletePost(postID)
	if post.ImageURL != "" && s.media != nil {
		if err := s.media.RemoveByURL(ctx, post.ImageURL); err != nil {
			log.Printf("app: remove post image: %v", err)
		}
	}
	return nil
}

// RecordView bumps the post's view count once per viewer.
func (s *Service) RecordView(ctx context.Context, postID, viewerKey string) (map[string]any, error) {
	if _, err := s.store.GetPost(ctx, postID, ""); err != nil {
		return nil, err
	}
	counted, err := s.store.RecordView(ctx, postID, viewerKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{"counted": counted}, nil
}

// ToggleReaction flips the viewer's reaction of the given kind and
// returns the post's fresh per-kind counts.
func (s *Service) ToggleReaction(ctx context.Context, sess Session, postID, kind string) (map[string]any, error) {
	if _, ok := allowedReactionKinds[kind]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown reaction kind", nil)
	}
	if _, err := s.store.GetPost(ctx, postID, sess.UserID); err != nil {
		return nil, err
	}

	added, err := s.store.ToggleReaction(ctx, postID, sess.UserID, kind)
	if err != nil {
		return nil, err
	}

	post, err := s.store.GetPost(ctx, postID, sess.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"added":         added,
		"reactions":     reactionPayloads(post.ReactionCounts),
		"reactionTotal": post.ReactionTotal(),
		"myReactions":   nonNilStrings(post.MyReactions),
	}, nil
}

// ---- comments ----

func (s *Service) CreateComment(ctx context.Context, sess Session, postID string, input CreateCommentInput) (map[string]any, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxCommentRunes {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("content must be at most %d characters", maxCommentRunes), nil)
	}

	if _, err := s.store.GetPost(ctx, postID, sess.UserID); err != nil {
		return nil, err
	}

	if input.ParentID != nil && *input.ParentID != "" {
		parent, err := s.store.GetComment(ctx, *input.ParentID, sess.UserID)
		if err != nil {
			return nil, err
		}
		if parent.PostID != postID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "parent comment belongs to another post", nil)
		}
		// One reply level only.
		if parent.ParentID != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "replies to replies are not allowed", nil)
		}
	} else {
		input.ParentID = nil
	}

	comment := store.Comment{
		ID:       util.NewID("cmt"),
		PostID:   postID,
		ParentID: input.ParentID,
		AuthorID: sess.UserID,
		Body:     content,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}

	created, err := s.store.GetComment(ctx, comment.ID, sess.UserID)
	if err != nil {
		return nil, err
	}
	return commentPayload(created), nil
}

func (s *Service) ListComments(ctx context.Context, postID, viewerID string) (map[string]any, error) {
	if _, err := s.store.GetPost(ctx, postID, viewerID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"comments": commentPayloads(comments)}, nil
}

func (s *Service) DeleteComment(ctx context.Context, sess Session, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID, sess.UserID)
	if err != nil {
		return err
	}
	if comment.AuthorID != sess.UserID && !s.Can(sess.Role, rbac.ActionModerate) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author may delete this comment", nil)
	}
	deleted, err := s.store.DeleteComment(ctx, commentID, comment.AuthorID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) ToggleCommentLike(ctx context.Context, sess Session, commentID string) (map[string]any, error) {
	if _, err := s.store.GetComment(ctx, commentID, sess.UserID); err != nil {
		return nil, err
	}
	liked, err := s.store.ToggleCommentLike(ctx, commentID, sess.UserID)
	if err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, commentID, sess.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"liked":     liked,
		"likeCount": comment.LikeCount,
	}, nil
}

// ---- reports ----

func (s *Service) CreateReport(ctx context.Context, sess Session, input CreateReportInput) (map[string]any, error) {
	if _, ok := allowedReportTargets[input.TargetType]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "targetType must be post or comment", nil)
	}
	if _, ok := allowedReportReasons[input.Reason]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown report reason", nil)
	}
	if utf8.RuneCountInString(input.Detail) > maxDetailRunes {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("detail must be at most %d characters", maxDetailRunes), nil)
	}

	switch input.TargetType {
	case "post":
		if _, err := s.store.GetPost(ctx, input.TargetID, sess.UserID); err != nil {
			return nil, err
		}
	case "comment":
		if _, err := s.store.GetComment(ctx, input.TargetID, sess.UserID); err != nil {
			return nil, err
		}
	}

	report := store.Report{
		ID:         util.NewID("rpt"),
		ReporterID: sess.UserID,
		TargetType: input.TargetType,
		TargetID:   input.TargetID,
		Reason:     input.Reason,
		Detail:     strings.TrimSpace(input.Detail),
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		if errors.Is(err, store.ErrDuplicateReport) {
			return nil, domainError(http.StatusConflict, "ALREADY_REPORTED", "You already reported this", nil)
		}
		return nil, err
	}
	return map[string]any{"id": report.ID, "status": "pending"}, nil
}

// ---- search ----

func (s *Service) SearchPosts(q, tag string, limit, offset int) (map[string]any, error) {
	if tag != "" {
		if _, ok := allowedTags[tag]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown tag", nil)
		}
	}
	resp := s.search.Search(search.Query{
		Text:   q,
		Tag:    tag,
		Limit:  clampLimit(limit),
		Offset: max(offset, 0),
	})
	return map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	}, nil
}

// ---- me ----

func (s *Service) MyPosts(ctx context.Context, userID string) (map[string]any, error) {
	posts, err := s.store.ListPostsByAuthor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"posts": postPayloads(posts)}, nil
}

func (s *Service) ReactedPosts(ctx context.Context, userID string) (map[string]any, error) {
	posts, err := s.store.ListReactedPosts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"posts": postPayloads(posts)}, nil
}

func (s *Service) CommentedPosts(ctx context.Context, userID string) (map[string]any, error) {
	posts, err := s.store.ListCommentedPosts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"posts": postPayloads(posts)}, nil
}

func (s *Service) UpdateProfile(ctx context.Context, sess Session, input UpdateProfileInput) (map[string]any, error) {
	nickname := strings.TrimSpace(input.Nickname)
	if nickname == "" {
		nickname = sess.Nickname
	}
	// Generated handles are exempt from the length rule; only a handle
	// the user picked themselves is validated.
	if nickname != sess.Nickname {
		if err := validateNickname(nickname); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
	}

	if err := s.store.UpdateProfile(ctx, sess.UserID, nickname, strings.TrimSpace(input.AvatarURL)); err != nil {
		if errors.Is(err, store.ErrNicknameTaken) {
			return nil, domainError(http.StatusConflict, "NICKNAME_TAKEN", "Nickname already in use", nil)
		}
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"userId":    user.ID,
		"nickname":  user.Nickname,
		"avatarUrl": user.AvatarURL,
	}, nil
}

// ---- media ----

func (s *Service) UploadPostImage(ctx context.Context, sess Session, r io.Reader, size int64, contentType string) (media.UploadResult, error) {
	if s.media == nil {
		return media.UploadResult{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Image storage not configured", nil)
	}
	return s.media.UploadPostImage(ctx, sess.UserID, r, size, contentType)
}

func (s *Service) UploadProfileImage(ctx context.Context, sess Session, r io.Reader, size int64, contentType string) (media.UploadResult, error) {
	if s.media == nil {
		return media.UploadResult{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Image storage not configured", nil)
	}
	return s.media.UploadProfileImage(ctx, sess.UserID, r, size, contentType)
}

// ---- admin ----

func (s *Service) DevMode(ctx context.Context) (map[string]any, error) {
	shared, err := s.store.GetDevMode(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"enabled": shared,
		"local":   s.windows.LocalOverride(),
	}, nil
}

// SetDevMode writes the shared override and notifies the window
// controller so the change takes effect without waiting for a poll.
func (s *Service) SetDevMode(ctx context.Context, enabled bool) (map[string]any, error) {
	if err := s.windows.SetSharedOverride(ctx, enabled); err != nil {
		return nil, err
	}
	return map[string]any{"enabled": enabled}, nil
}

func (s *Service) AdminStats(ctx context.Context) (map[string]any, error) {
	posts, comments, pendingReports, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"posts":          posts,
		"comments":       comments,
		"pendingReports": pendingReports,
	}, nil
}

func (s *Service) AdminReports(ctx context.Context, limit int) (map[string]any, error) {
	reports, err := s.store.RecentReports(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(reports))
	for _, report := range reports {
		items = append(items, map[string]any{
			"id":         report.ID,
			"reporterId": report.ReporterID,
			"targetType": report.TargetType,
			"targetId":   report.TargetID,
			"reason":     report.Reason,
			"detail":     report.Detail,
			"status":     report.Status,
			"createdAt":  report.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"reports": items}, nil
}

func (s *Service) ResolveReport(ctx context.Context, reportID, status string) error {
	if _, ok := allowedReportStatuses[status]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be pending, reviewed or dismissed", nil)
	}
	updated, err := s.store.UpdateReportStatus(ctx, reportID, status)
	if err != nil {
		return err
	}
	if !updated {
		return sql.ErrNoRows
	}
	return nil
}

// ---- expiry sweeper ----

// RunExpirySweeper purges expired posts whenever the window closes.
// It watches controller transitions rather than polling the table.
func (s *Service) RunExpirySweeper(ctx context.Context) {
	states, release := s.windows.Subscribe()
	defer release()

	wasOpen := s.windows.State().IsOpen
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-states:
			if wasOpen && !state.IsOpen {
				s.sweepExpired()
			}
			wasOpen = state.IsOpen
		}
	}
}

func (s *Service) sweepExpired() {
	sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged, err := s.store.PurgeExpired(sweepCtx, time.Now())
	if err != nil {
		log.Printf("app: purge expired posts: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("app: purged %d expired posts", purged)
		// Purged rows disappear from the table; rebuild the index so
		// search stops returning them.
		s.search.ReindexAllFromPG(sweepCtx)
	}
}

// ---- payload shaping ----

func postPayload(p store.Post) map[string]any {
	payload := map[string]any{
		"id":            p.ID,
		"nickname":      p.AuthorNickname,
		"tag":           p.Tag,
		"content":       p.Body,
		"imageUrl":      p.ImageURL,
		"isPermanent":   p.IsPermanent,
		"viewCount":     p.ViewCount,
		"commentCount":  p.CommentCount,
		"reactions":     reactionPayloads(p.ReactionCounts),
		"reactionTotal": p.ReactionTotal(),
		"myReactions":   nonNilStrings(p.MyReactions),
		"createdAt":     p.CreatedAt.Format(time.RFC3339),
	}
	if p.ExpiresAt != nil {
		payload["expiresAt"] = p.ExpiresAt.Format(time.RFC3339)
	}
	return payload
}

func postPayloads(posts []store.Post) []map[string]any {
	items := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		items = append(items, postPayload(p))
	}
	return items
}

func reactionPayloads(counts []store.ReactionCount) []map[string]any {
	items := make([]map[string]any, 0, len(counts))
	for _, rc := range counts {
		items = append(items, map[string]any{"kind": rc.Kind, "count": rc.Count})
	}
	return items
}

func commentPayload(c store.Comment) map[string]any {
	payload := map[string]any{
		"id":        c.ID,
		"postId":    c.PostID,
		"nickname":  c.AuthorNickname,
		"content":   c.Body,
		"likeCount": c.LikeCount,
		"isLiked":   c.LikedByMe,
		"createdAt": c.CreatedAt.Format(time.RFC3339),
	}
	if c.ParentID != nil {
		payload["parentId"] = *c.ParentID
	}
	replies := make([]map[string]any, 0, len(c.Replies))
	for _, reply := range c.Replies {
		replies = append(replies, commentPayload(reply))
	}
	payload["replies"] = replies
	return payload
}

func commentPayloads(comments []store.Comment) []map[string]any {
	items := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		items = append(items, commentPayload(c))
	}
	return items
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 50 {
		return 50
	}
	return limit
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// validateNickname enforces the board's handle rules: 2 to 12
// characters, letters (Hangul included), digits and spaces.
func validateNickname(nickname string) error {
	count := utf8.RuneCountInString(nickname)
	if count < 2 || count > 12 {
		return errors.New("nickname must be 2 to 12 characters")
	}
	for _, r := range nickname {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' && r != '-' {
			return errors.New("nickname may only contain letters, digits, spaces and hyphens")
		}
	}
	return nil
}
