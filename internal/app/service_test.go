package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"midnight/api/internal/auth"
	"midnight/api/internal/config"
	"midnight/api/internal/search"
	"midnight/api/internal/store"
	"midnight/api/internal/window"
)

type fakeStore struct {
	pingFn                func(context.Context) error
	getUserByIDFn         func(context.Context, string) (store.User, error)
	updateProfileFn       func(ctx context.Context, userID, nickname, avatarURL string) error
	saveRefreshFn         func(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	lookupRefreshFn       func(ctx context.Context, tokenHash string) (store.User, error)
	insertPostFn          func(context.Context, store.Post) error
	getPostFn             func(ctx context.Context, postID, viewerID string) (store.Post, error)
	listPostsFn           func(ctx context.Context, filter store.PostFilter, viewerID string) ([]store.Post, error)
	hotPostsFn            func(ctx context.Context, limit int, viewerID string) ([]store.Post, error)
	listPostsByAuthorFn   func(ctx context.Context, authorID string) ([]store.Post, error)
	listReactedPostsFn    func(ctx context.Context, userID string) ([]store.Post, error)
	listCommentedPostsFn  func(ctx context.Context, userID string) ([]store.Post, error)
	deletePostFn          func(ctx context.Context, postID, authorID string) (bool, error)
	purgeExpiredFn        func(ctx context.Context, now time.Time) (int, error)
	toggleReactionFn      func(ctx context.Context, postID, userID, kind string) (bool, error)
	recordViewFn          func(ctx context.Context, postID, viewerKey string) (bool, error)
	insertCommentFn       func(context.Context, store.Comment) error
	getCommentFn          func(ctx context.Context, commentID, viewerID string) (store.Comment, error)
	listCommentsFn        func(ctx context.Context, postID, viewerID string) ([]store.Comment, error)
	deleteCommentFn       func(ctx context.Context, commentID, authorID string) (bool, error)
	toggleCommentLikeFn   func(ctx context.Context, commentID, userID string) (bool, error)
	insertReportFn        func(context.Context, store.Report) error
	recentReportsFn       func(ctx context.Context, limit int) ([]store.Report, error)
	updateReportStatusFn  func(ctx context.Context, reportID, status string) (bool, error)
	getDevModeFn          func(context.Context) (bool, error)
	summaryCountsFn       func(context.Context) (int, int, int, error)
	revokeAccessTokenFn   func(ctx context.Context, jti string, expiresAt time.Time) error
	isAccessTokenRevoked  func(ctx context.Context, jti string) (bool, error)
	revokeRefreshFn       func(ctx context.Context, tokenHash string) error
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, Nickname: "quiet-owl-111", Role: "member"}, nil
}
func (f *fakeStore) UpdateProfile(ctx context.Context, userID, nickname, avatarURL string) error {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, userID, nickname, avatarURL)
	}
	return nil
}
func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if f.saveRefreshFn != nil {
		return f.saveRefreshFn(ctx, tokenHash, userID, expiresAt)
	}
	return nil
}
func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshFn != nil {
		return f.revokeRefreshFn(ctx, tokenHash)
	}
	return nil
}
func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshFn != nil {
		return f.lookupRefreshFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if f.revokeAccessTokenFn != nil {
		return f.revokeAccessTokenFn(ctx, jti, expiresAt)
	}
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevoked != nil {
		return f.isAccessTokenRevoked(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) InsertPost(ctx context.Context, post store.Post) error {
	if f.insertPostFn != nil {
		return f.insertPostFn(ctx, post)
	}
	return nil
}
func (f *fakeStore) GetPost(ctx context.Context, postID, viewerID string) (store.Post, error) {
	if f.getPostFn != nil {
		return f.getPostFn(ctx, postID, viewerID)
	}
	return store.Post{}, sql.ErrNoRows
}
func (f *fakeStore) ListPosts(ctx context.Context, filter store.PostFilter, viewerID string) ([]store.Post, error) {
	if f.listPostsFn != nil {
		return f.listPostsFn(ctx, filter, viewerID)
	}
	return nil, nil
}
func (f *fakeStore) HotPosts(ctx context.Context, limit int, viewerID string) ([]store.Post, error) {
	if f.hotPostsFn != nil {
		return f.hotPostsFn(ctx, limit, viewerID)
	}
	return nil, nil
}
func (f *fakeStore) ListPostsByAuthor(ctx context.Context, authorID string) ([]store.Post, error) {
	if f.listPostsByAuthorFn != nil {
		return f.listPostsByAuthorFn(ctx, authorID)
	}
	return nil, nil
}
func (f *fakeStore) ListReactedPosts(ctx context.Context, userID string) ([]store.Post, error) {
	if f.listReactedPostsFn != nil {
		return f.listReactedPostsFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) ListCommentedPosts(ctx context.Context, userID string) ([]store.Post, error) {
	if f.listCommentedPostsFn != nil {
		return f.listCommentedPostsFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) DeletePost(ctx context.Context, postID, authorID string) (bool, error) {
	if f.deletePostFn != nil {
		return f.deletePostFn(ctx, postID, authorID)
	}
	return false, nil
}
func (f *fakeStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if f.purgeExpiredFn != nil {
		return f.purgeExpiredFn(ctx, now)
	}
	return 0, nil
}
func (f *fakeStore) ToggleReaction(ctx context.Context, postID, userID, kind string) (bool, error) {
	if f.toggleReactionFn != nil {
		return f.toggleReactionFn(ctx, postID, userID, kind)
	}
	return false, nil
}
func (f *fakeStore) RecordView(ctx context.Context, postID, viewerKey string) (bool, error) {
	if f.recordViewFn != nil {
		return f.recordViewFn(ctx, postID, viewerKey)
	}
	return false, nil
}
func (f *fakeStore) InsertComment(ctx context.Context, comment store.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, comment)
	}
	return nil
}
func (f *fakeStore) GetComment(ctx context.Context, commentID, viewerID string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, commentID, viewerID)
	}
	return store.Comment{}, sql.ErrNoRows
}
func (f *fakeStore) ListComments(ctx context.Context, postID, viewerID string) ([]store.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, postID, viewerID)
	}
	return nil, nil
}
func (f *fakeStore) DeleteComment(ctx context.Context, commentID, authorID string) (bool, error) {
	if f.deleteCommentFn != nil {
		return f.deleteCommentFn(ctx, commentID, authorID)
	}
	return false, nil
}
func (f *fakeStore) ToggleCommentLike(ctx context.Context, commentID, userID string) (bool, error) {
	if f.toggleCommentLikeFn != nil {
		return f.toggleCommentLikeFn(ctx, commentID, userID)
	}
	return false, nil
}
func (f *fakeStore) InsertReport(ctx context.Context, report store.Report) error {
	if f.insertReportFn != nil {
		return f.insertReportFn(ctx, report)
	}
	return nil
}
func (f *fakeStore) RecentReports(ctx context.Context, limit int) ([]store.Report, error) {
	if f.recentReportsFn != nil {
		return f.recentReportsFn(ctx, limit)
	}
	return nil, nil
}
func (f *fakeStore) UpdateReportStatus(ctx context.Context, reportID, status string) (bool, error) {
	if f.updateReportStatusFn != nil {
		return f.updateReportStatusFn(ctx, reportID, status)
	}
	return false, nil
}
func (f *fakeStore) GetDevMode(ctx context.Context) (bool, error) {
	if f.getDevModeFn != nil {
		return f.getDevModeFn(ctx)
	}
	return false, nil
}
func (f *fakeStore) SummaryCounts(ctx context.Context) (int, int, int, error) {
	if f.summaryCountsFn != nil {
		return f.summaryCountsFn(ctx)
	}
	return 0, 0, 0, nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.PostRecord
	deleted []string
	reindex int

	searchFn func(q search.Query) search.Response
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}
func (f *fakeSearch) IndexPost(p search.PostRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, p)
}
func (f *fakeSearch) DeletePost(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}
func (f *fakeSearch) ReindexAllFromPG(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindex++
}

type fakeSessions struct {
	pingFn   func(context.Context) error
	saveFn   func(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	lookupFn func(ctx context.Context, tokenHash string) (store.User, error)
	revokeFn func(ctx context.Context, tokenHash string) error
}

func (f *fakeSessions) SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, tokenHash, user, expiresAt)
	}
	return nil
}
func (f *fakeSessions) LookupSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupFn != nil {
		return f.lookupFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeSessions) RevokeSession(ctx context.Context, tokenHash string) error {
	if f.revokeFn != nil {
		return f.revokeFn(ctx, tokenHash)
	}
	return nil
}
func (f *fakeSessions) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeOverrideStore struct {
	mu      sync.Mutex
	enabled bool
	setErr  error
}

func (f *fakeOverrideStore) GetDevMode(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, nil
}
func (f *fakeOverrideStore) SetDevMode(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.enabled = enabled
	return nil
}

var testZone = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		panic(err)
	}
	return loc
}()

// openClock is 01:30 in the reference zone, inside the window.
func openClock() time.Time {
	return time.Date(2026, 3, 14, 1, 30, 0, 0, testZone)
}

// closedClock is 12:00 in the reference zone, well outside the window.
func closedClock() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, testZone)
}

func testController(now func() time.Time, opts ...window.Option) *window.Controller {
	schedule := window.Schedule{OpenHour: 0, CloseHour: 4, Location: testZone}
	opts = append([]window.Option{window.WithClock(now)}, opts...)
	return window.NewController(schedule, opts...)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
}

func newTestService(fs *fakeStore, ctl *window.Controller) (*Service, *fakeSearch) {
	idx := &fakeSearch{}
	svc := &Service{
		cfg:      testConfig(),
		store:    fs,
		sessions: &fakeSessions{},
		search:   idx,
		windows:  ctl,
	}
	return svc, idx
}

func issueTestToken(t *testing.T, svc *Service, user store.User) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Nickname: user.Nickname,
		Role:     user.Role,
		JTI:      "jti-test",
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestWindowOpenFor(t *testing.T) {
	svcOpen, _ := newTestService(&fakeStore{}, testController(openClock))
	if !svcOpen.WindowOpenFor("member") {
		t.Error("members should get in while the window is open")
	}

	svcClosed, _ := newTestService(&fakeStore{}, testController(closedClock))
	if svcClosed.WindowOpenFor("member") {
		t.Error("members must be locked out while the window is closed")
	}
	if !svcClosed.WindowOpenFor("moderator") {
		t.Error("moderators bypass the window")
	}
	if !svcClosed.WindowOpenFor("admin") {
		t.Error("admins bypass the window")
	}
}

func TestViewerKey(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, testController(openClock))

	signedIn := svc.ViewerKey(Session{UserID: "usr_1"}, "203.0.113.9:4411")
	if signedIn != "usr_1" {
		t.Fatalf("signed-in viewer key = %q, want usr_1", signedIn)
	}

	anonA := svc.ViewerKey(Session{}, "203.0.113.9:4411")
	anonB := svc.ViewerKey(Session{}, "203.0.113.9:5522")
	if anonA == "" || anonA == "203.0.113.9:4411" {
		t.Fatalf("anonymous viewer key should be a hash, got %q", anonA)
	}
	if anonA != anonB {
		t.Error("same IP with different ports should produce the same viewer key")
	}

	anonOther := svc.ViewerKey(Session{}, "198.51.100.7:4411")
	if anonOther == anonA {
		t.Error("different IPs must not collide")
	}
}

func TestCreatePostStampsExpiry(t *testing.T) {
	var inserted store.Post
	fs := &fakeStore{
		insertPostFn: func(_ context.Context, post store.Post) error {
			inserted = post
			return nil
		},
		getPostFn: func(_ context.Context, postID, _ string) (store.Post, error) {
			return store.Post{ID: postID, AuthorNickname: "quiet-owl-111", Tag: "monologue", Body: "late thoughts"}, nil
		},
	}
	svc, idx := newTestService(fs, testController(openClock))
	sess := Session{UserID: "usr_1", Nickname: "quiet-owl-111", Role: "member"}

	if _, err := svc.CreatePost(context.Background(), sess, CreatePostInput{Tag: "monologue", Content: "late thoughts"}); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if inserted.ExpiresAt == nil {
		t.Fatal("ephemeral post should carry an expiry")
	}
	wantClose := time.Date(2026, 3, 14, 4, 0, 0, 0, testZone)
	if !inserted.ExpiresAt.Equal(wantClose) {
		t.Errorf("expiry = %v, want window close %v", inserted.ExpiresAt, wantClose)
	}
	if len(idx.indexed) != 1 || idx.indexed[0].ID != inserted.ID {
		t.Error("created post should be pushed to the search index")
	}

	if _, err := svc.CreatePost(context.Background(), sess, CreatePostInput{Tag: "comfort", Content: "keep this one", IsPermanent: true}); err != nil {
		t.Fatalf("CreatePost permanent: %v", err)
	}
	if inserted.ExpiresAt != nil {
		t.Error("permanent post must not expire")
	}
}

func TestCreatePostValidation(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, testController(openClock))
	sess := Session{UserID: "usr_1", Role: "member"}

	cases := []struct {
		name  string
		input CreatePostInput
	}{
		{name: "empty content", input: CreatePostInput{Tag: "monologue", Content: "   "}},
		{name: "unknown tag", input: CreatePostInput{Tag: "politics", Content: "hello"}},
		{name: "content too long", input: CreatePostInput{Tag: "monologue", Content: strings501()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePost(context.Background(), sess, tc.input)
			var domainErr *DomainError
			if !errors.As(err, &domainErr) || domainErr.Status != 422 {
				t.Fatalf("want 422 DomainError, got %v", err)
			}
		})
	}
}

func TestCreateCommentDepthLimit(t *testing.T) {
	parentOfParent := "cmt_root"
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID, _ string) (store.Post, error) {
			return store.Post{ID: postID}, nil
		},
		getCommentFn: func(_ context.Context, commentID, _ string) (store.Comment, error) {
			switch commentID {
			case "cmt_root":
				return store.Comment{ID: "cmt_root", PostID: "post_1"}, nil
			case "cmt_reply":
				return store.Comment{ID: "cmt_reply", PostID: "post_1", ParentID: &parentOfParent}, nil
			}
			return store.Comment{}, sql.ErrNoRows
		},
		insertCommentFn: func(_ context.Context, c store.Comment) error { return nil },
	}
	svc, _ := newTestService(fs, testController(openClock))
	sess := Session{UserID: "usr_1", Role: "member"}

	replyTo := "cmt_reply"
	_, err := svc.CreateComment(context.Background(), sess, "post_1", CreateCommentInput{Content: "me too", ParentID: &replyTo})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("reply to a reply: want 422, got %v", err)
	}

	otherPost := "cmt_root"
	_, err = svc.CreateComment(context.Background(), sess, "post_2", CreateCommentInput{Content: "hi", ParentID: &otherPost})
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("cross-post parent: want 422, got %v", err)
	}
}

func TestDeletePostAuthorization(t *testing.T) {
	deleted := false
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID, _ string) (store.Post, error) {
			return store.Post{ID: postID, AuthorID: "usr_author"}, nil
		},
		deletePostFn: func(_ context.Context, postID, authorID string) (bool, error) {
			if authorID != "usr_author" {
				t.Errorf("delete should target the author's row, got author %q", authorID)
			}
			deleted = true
			return true, nil
		},
	}
	svc, idx := newTestService(fs, testController(openClock))

	err := svc.DeletePost(context.Background(), Session{UserID: "usr_other", Role: "member"}, "post_1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("stranger delete: want 403, got %v", err)
	}
	if deleted {
		t.Fatal("store delete must not run for a forbidden caller")
	}

	if err := svc.DeletePost(context.Background(), Session{UserID: "usr_author", Role: "member"}, "post_1"); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	if !deleted {
		t.Fatal("author delete should reach the store")
	}

	deleted = false
	if err := svc.DeletePost(context.Background(), Session{UserID: "usr_mod", Role: "moderator"}, "post_1"); err != nil {
		t.Fatalf("moderator delete: %v", err)
	}
	if !deleted {
		t.Fatal("moderator delete should reach the store")
	}
	if len(idx.deleted) == 0 {
		t.Error("deleted post should be removed from the search index")
	}
}

func TestCreateReportDuplicate(t *testing.T) {
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID, _ string) (store.Post, error) {
			return store.Post{ID: postID}, nil
		},
		insertReportFn: func(_ context.Context, r store.Report) error {
			return store.ErrDuplicateReport
		},
	}
	svc, _ := newTestService(fs, testController(openClock))

	_, err := svc.CreateReport(context.Background(), Session{UserID: "usr_1"}, CreateReportInput{
		TargetType: "post",
		TargetID:   "post_1",
		Reason:     "spam",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("want DomainError, got %v", err)
	}
	if domainErr.Status != 409 || domainErr.Code != "ALREADY_REPORTED" {
		t.Fatalf("duplicate report = %d %s, want 409 ALREADY_REPORTED", domainErr.Status, domainErr.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	revokedJTIs := map[string]bool{}
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, Nickname: "hazy-moth-042", Role: "member"}, nil
		},
		revokeAccessTokenFn: func(_ context.Context, jti string, _ time.Time) error {
			revokedJTIs[jti] = true
			return nil
		},
		isAccessTokenRevoked: func(_ context.Context, jti string) (bool, error) {
			return revokedJTIs[jti], nil
		},
	}
	cache := map[string]store.User{}
	sessions := &fakeSessions{
		saveFn: func(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
			cache[tokenHash] = user
			return nil
		},
		lookupFn: func(_ context.Context, tokenHash string) (store.User, error) {
			user, ok := cache[tokenHash]
			if !ok {
				return store.User{}, sql.ErrNoRows
			}
			return user, nil
		},
		revokeFn: func(_ context.Context, tokenHash string) error {
			delete(cache, tokenHash)
			return nil
		},
	}
	svc, _ := newTestService(fs, testController(openClock))
	svc.sessions = sessions

	sess, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Token == "" || sess.RefreshToken == "" {
		t.Fatal("session should carry access and refresh tokens")
	}
	if sess.Nickname != "hazy-moth-042" {
		t.Errorf("nickname = %q", sess.Nickname)
	}

	parsed, err := svc.SessionFromToken(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.UserID != "usr_1" {
		t.Errorf("parsed user = %q", parsed.UserID)
	}

	refreshed, err := svc.Refresh(context.Background(), sess.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken == sess.RefreshToken {
		t.Error("refresh must rotate the refresh token")
	}

	// The old refresh token was revoked by the rotation.
	if _, err := svc.Refresh(context.Background(), sess.RefreshToken); err == nil {
		t.Error("reusing a rotated refresh token should fail")
	}

	if err := svc.Logout(context.Background(), refreshed, refreshed.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), refreshed.Token); err == nil {
		t.Error("access token should be revoked after logout")
	}
}

func TestExpirySweeperFiresOnClose(t *testing.T) {
	var mu sync.Mutex
	currentClock := openClock()
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return currentClock
	}

	purged := make(chan struct{}, 1)
	fs := &fakeStore{
		purgeExpiredFn: func(context.Context, time.Time) (int, error) {
			select {
			case purged <- struct{}{}:
			default:
			}
			return 3, nil
		},
	}

	ctl := testController(now, window.WithTickInterval(5*time.Millisecond))
	ctl.Start()
	defer ctl.Close()

	svc, idx := newTestService(fs, ctl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunExpirySweeper(ctx)

	// Give the sweeper a moment to observe the open state, then close
	// the window.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	currentClock = closedClock()
	mu.Unlock()

	select {
	case <-purged:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not purge after the window closed")
	}

	// Reindex follows a purge that removed rows.
	deadline := time.After(2 * time.Second)
	for {
		idx.mu.Lock()
		reindexed := idx.reindex > 0
		idx.mu.Unlock()
		if reindexed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper did not trigger a reindex")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestValidateNickname(t *testing.T) {
	valid := []string{"밤하늘", "night owl", "owl42", "ab"}
	for _, nickname := range valid {
		if err := validateNickname(nickname); err != nil {
			t.Errorf("validateNickname(%q) = %v, want nil", nickname, err)
		}
	}

	invalid := []string{"a", "way too long nickname here", "bad!name", ""}
	for _, nickname := range invalid {
		if err := validateNickname(nickname); err == nil {
			t.Errorf("validateNickname(%q) should fail", nickname)
		}
	}
}

func strings501() string {
	buf := make([]byte, 501)
	for i := range buf {
		buf[i] = 'a'
	}
	return string(buf)
}
