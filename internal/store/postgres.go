package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateReport means the reporter already filed a report
	// against this target. Unlike reaction duplicates this one
	// surfaces to the caller.
	ErrDuplicateReport = errors.New("duplicate report")

	ErrEmailTaken    = errors.New("email already registered")
	ErrNicknameTaken = errors.New("nickname already taken")
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, nickname, email, password_hash, role, avatar_url, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, user.ID, user.Nickname, user.Email, user.PasswordHash, user.Role, user.AvatarURL, user.VerificationToken, user.VerificationExpiresAt)
	if isUniqueViolation(err) {
		var exists bool
		if probeErr := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, user.Email).Scan(&exists); probeErr == nil && exists {
			return ErrEmailTaken
		}
		return ErrNicknameTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, `WHERE id=$1 AND deactivated_at IS NULL`, userID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, `WHERE email=$1 AND deactivated_at IS NULL`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, nickname, email, password_hash, role, COALESCE(avatar_url, ''), is_email_verified,
			COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM users
	`+where, arg).Scan(
		&user.ID,
		&user.Nickname,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.AvatarURL,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) VerifyEmail(ctx context.Context, token string) (User, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
		RETURNING id
	`, token).Scan(&userID)
	if err != nil {
		return User{}, err
	}
	return s.GetUserByID(ctx, userID)
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, userID, nickname, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET nickname=$2, avatar_url=NULLIF($3, ''), updated_at=NOW()
		WHERE id=$1
	`, userID, nickname, avatarURL)
	if isUniqueViolation(err) {
		return ErrNicknameTaken
	}
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.nickname, u.email, u.password_hash, u.role, COALESCE(u.avatar_url, ''), u.is_email_verified,
			COALESCE(u.verification_token, ''), u.verification_expires_at, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&user.ID,
		&user.Nickname,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.AvatarURL,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_access_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- posts ----

// alivePosts filters out posts that reached their expiry. Permanent
// posts never expire.
const alivePosts = `(p.is_permanent OR p.expires_at IS NULL OR p.expires_at > NOW())`

const postColumns = `
	p.id, p.author_id, u.nickname, p.tag, p.body, COALESCE(p.image_url, ''),
	p.is_permanent, p.view_count,
	(SELECT COUNT(*)::int FROM comments c WHERE c.post_id = p.id) AS comment_count,
	p.created_at, p.expires_at
`

func (s *PostgresStore) InsertPost(ctx context.Context, post Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, tag, body, image_url, is_permanent, expires_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`, post.ID, post.AuthorID, post.Tag, post.Body, post.ImageURL, post.IsPermanent, post.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID, viewerID string) (Post, error) {
	var item Post
	err := s.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.id=$1 AND `+alivePosts+`
	`, postID).Scan(
		&item.ID,
		&item.AuthorID,
		&item.AuthorNickname,
		&item.Tag,
		&item.Body,
		&item.ImageURL,
		&item.IsPermanent,
		&item.ViewCount,
		&item.CommentCount,
		&item.CreatedAt,
		&item.ExpiresAt,
	)
	if err != nil {
		return Post{}, err
	}
	posts := []Post{item}
	if err := s.attachReactions(ctx, posts, viewerID); err != nil {
		return Post{}, err
	}
	return posts[0], nil
}

func (s *PostgresStore) ListPosts(ctx context.Context, filter PostFilter, viewerID string) ([]Post, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	order := `p.created_at DESC`
	switch filter.Sort {
	case "views":
		order = `p.view_count DESC, p.created_at DESC`
	case "reactions":
		order = `(SELECT COUNT(*) FROM reactions r WHERE r.post_id=p.id) DESC, p.created_at DESC`
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE ($1='' OR p.tag=$1) AND `+alivePosts+`
		ORDER BY `+order+`
		LIMIT $2 OFFSET $3
	`, filter.Tag, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return s.collectPosts(ctx, rows, viewerID)
}

// HotPosts returns the most reacted-to posts still alive, breaking
// ties by view count.
func (s *PostgresStore) HotPosts(ctx context.Context, limit int, viewerID string) ([]Post, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE `+alivePosts+`
		ORDER BY (SELECT COUNT(*) FROM reactions r WHERE r.post_id=p.id) DESC, p.view_count DESC, p.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("hot posts: %w", err)
	}
	return s.collectPosts(ctx, rows, viewerID)
}

func (s *PostgresStore) ListPostsByAuthor(ctx context.Context, authorID string) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.author_id=$1 AND `+alivePosts+`
		ORDER BY p.created_at DESC
	`, authorID)
	if err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	return s.collectPosts(ctx, rows, authorID)
}

func (s *PostgresStore) ListReactedPosts(ctx context.Context, userID string) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE `+alivePosts+`
			AND EXISTS(SELECT 1 FROM reactions r WHERE r.post_id=p.id AND r.user_id=$1)
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reacted posts: %w", err)
	}
	return s.collectPosts(ctx, rows, userID)
}

func (s *PostgresStore) ListCommentedPosts(ctx context.Context, userID string) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE `+alivePosts+`
			AND EXISTS(SELECT 1 FROM comments c WHERE c.post_id=p.id AND c.author_id=$1)
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list commented posts: %w", err)
	}
	return s.collectPosts(ctx, rows, userID)
}

func (s *PostgresStore) collectPosts(ctx context.Context, rows *sql.Rows, viewerID string) ([]Post, error) {
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		var item Post
		if err := rows.Scan(
			&item.ID,
			&item.AuthorID,
			&item.AuthorNickname,
			&item.Tag,
			&item.Body,
			&item.ImageURL,
			&item.IsPermanent,
			&item.ViewCount,
			&item.CommentCount,
			&item.CreatedAt,
			&item.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	if err := s.attachReactions(ctx, items, viewerID); err != nil {
		return nil, err
	}
	return items, nil
}

// attachReactions stitches per-kind counts and the viewer's own
// reactions onto an already scanned post slice.
func (s *PostgresStore) attachReactions(ctx context.Context, posts []Post, viewerID string) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(posts))
	index := make(map[string]int, len(posts))
	for i, p := range posts {
		ids = append(ids, p.ID)
		index[p.ID] = i
		posts[i].ReactionCounts = []ReactionCount{}
		posts[i].MyReactions = []string{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, kind, COUNT(*)::int
		FROM reactions
		WHERE post_id = ANY($1)
		GROUP BY post_id, kind
		ORDER BY post_id ASC, kind ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("list reaction counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var postID, kind string
		var count int
		if err := rows.Scan(&postID, &kind, &count); err != nil {
			return fmt.Errorf("scan reaction count: %w", err)
		}
		i := index[postID]
		posts[i].ReactionCounts = append(posts[i].ReactionCounts, ReactionCount{Kind: kind, Count: count})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reaction counts: %w", err)
	}

	if viewerID == "" {
		return nil
	}
	mineRows, err := s.db.QueryContext(ctx, `
		SELECT post_id, kind
		FROM reactions
		WHERE post_id = ANY($1) AND user_id=$2
		ORDER BY kind ASC
	`, ids, viewerID)
	if err != nil {
		return fmt.Errorf("list own reactions: %w", err)
	}
	defer mineRows.Close()
	for mineRows.Next() {
		var postID, kind string
		if err := mineRows.Scan(&postID, &kind); err != nil {
			return fmt.Errorf("scan own reaction: %w", err)
		}
		i := index[postID]
		posts[i].MyReactions = append(posts[i].MyReactions, kind)
	}
	if err := mineRows.Err(); err != nil {
		return fmt.Errorf("iterate own reactions: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, postID, authorID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1 AND author_id=$2`, postID, authorID)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete post rows: %w", err)
	}
	return affected > 0, nil
}

// PurgeExpired removes every non-permanent post whose expiry passed.
// Cascades take reactions, comments and views with it.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM posts
		WHERE NOT is_permanent AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired posts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired rows: %w", err)
	}
	return int(affected), nil
}

// ToggleReaction removes the user's reaction of this kind if present,
// otherwise adds it. A concurrent duplicate insert is benign: the
// reaction exists either way.
func (s *PostgresStore) ToggleReaction(ctx context.Context, postID, userID, kind string) (added bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM reactions
		WHERE post_id=$1 AND user_id=$2 AND kind=$3
	`, postID, userID, kind)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete reaction rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reactions (post_id, user_id, kind)
		VALUES ($1, $2, $3)
	`, postID, userID, kind)
	if isUniqueViolation(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert reaction: %w", err)
	}
	return true, nil
}

// RecordView counts a post view at most once per viewer key. Returns
// whether the counter moved.
func (s *PostgresStore) RecordView(ctx context.Context, postID, viewerKey string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO post_views (post_id, viewer_key)
		VALUES ($1, $2)
		ON CONFLICT (post_id, viewer_key) DO NOTHING
	`, postID, viewerKey)
	if err != nil {
		return false, fmt.Errorf("record view: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record view rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE posts SET view_count = view_count + 1 WHERE id=$1`, postID); err != nil {
		return false, fmt.Errorf("bump view count: %w", err)
	}
	return true, nil
}

// ---- comments ----

const commentColumns = `
	c.id, c.post_id, c.parent_id, c.author_id, u.nickname, c.body,
	(SELECT COUNT(*)::int FROM comment_likes cl WHERE cl.comment_id=c.id) AS like_count,
	EXISTS(SELECT 1 FROM comment_likes cl WHERE cl.comment_id=c.id AND cl.user_id=$2) AS liked_by_me,
	c.created_at
`

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, author_id, body)
		VALUES ($1, $2, $3, $4, $5)
	`, comment.ID, comment.PostID, comment.ParentID, comment.AuthorID, comment.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID, viewerID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id=$1
	`, commentID, viewerID).Scan(
		&item.ID,
		&item.PostID,
		&item.ParentID,
		&item.AuthorID,
		&item.AuthorNickname,
		&item.Body,
		&item.LikeCount,
		&item.LikedByMe,
		&item.CreatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

// ListComments returns the post's comments as a two-level tree:
// top-level comments in creation order, each carrying its replies in
// creation order.
func (s *PostgresStore) ListComments(ctx context.Context, postID, viewerID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id=$1
		ORDER BY c.created_at ASC
	`, postID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	flat := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(
			&item.ID,
			&item.PostID,
			&item.ParentID,
			&item.AuthorID,
			&item.AuthorNickname,
			&item.Body,
			&item.LikeCount,
			&item.LikedByMe,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		item.Replies = []Comment{}
		flat = append(flat, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	top := make([]Comment, 0)
	index := make(map[string]int)
	for _, item := range flat {
		if item.ParentID == nil {
			top = append(top, item)
			index[item.ID] = len(top) - 1
		}
	}
	for _, item := range flat {
		if item.ParentID == nil {
			continue
		}
		if i, ok := index[*item.ParentID]; ok {
			top[i].Replies = append(top[i].Replies, item)
		}
	}
	return top, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID, authorID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1 AND author_id=$2`, commentID, authorID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment rows: %w", err)
	}
	return affected > 0, nil
}

// ToggleCommentLike removes the user's like if present, otherwise
// adds it. Duplicate inserts are benign.
func (s *PostgresStore) ToggleCommentLike(ctx context.Context, commentID, userID string) (liked bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comment_likes
		WHERE comment_id=$1 AND user_id=$2
	`, commentID, userID)
	if err != nil {
		return false, fmt.Errorf("delete comment like: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment like rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comment_likes (comment_id, user_id)
		VALUES ($1, $2)
	`, commentID, userID)
	if isUniqueViolation(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert comment like: %w", err)
	}
	return true, nil
}

// ---- reports ----

func (s *PostgresStore) InsertReport(ctx context.Context, report Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, reporter_id, target_type, target_id, reason, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, report.ID, report.ReporterID, report.TargetType, report.TargetID, report.Reason, report.Detail)
	if isUniqueViolation(err) {
		return ErrDuplicateReport
	}
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentReports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reporter_id, target_type, target_id, reason, COALESCE(detail, ''), status, created_at
		FROM reports
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]Report, 0)
	for rows.Next() {
		var item Report
		if err := rows.Scan(
			&item.ID,
			&item.ReporterID,
			&item.TargetType,
			&item.TargetID,
			&item.Reason,
			&item.Detail,
			&item.Status,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateReportStatus(ctx context.Context, reportID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE reports SET status=$2 WHERE id=$1`, reportID, status)
	if err != nil {
		return false, fmt.Errorf("update report status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update report status rows: %w", err)
	}
	return affected > 0, nil
}

// ---- settings ----

func (s *PostgresStore) GetDevMode(ctx context.Context) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((value->>'enabled')::boolean, FALSE)
		FROM settings
		WHERE key='dev_mode'
	`).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read dev mode: %w", err)
	}
	return enabled, nil
}

func (s *PostgresStore) SetDevMode(ctx context.Context, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES ('dev_mode', jsonb_build_object('enabled', $1::boolean))
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, enabled)
	if err != nil {
		return fmt.Errorf("write dev mode: %w", err)
	}
	return nil
}

// ---- stats ----

func (s *PostgresStore) SummaryCounts(ctx context.Context) (posts int, comments int, pendingReports int, err error) {
	if err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM posts p WHERE `+alivePosts+`
	`).Scan(&posts); err != nil {
		err = fmt.Errorf("count posts: %w", err)
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&comments); err != nil {
		err = fmt.Errorf("count comments: %w", err)
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE status='pending'`).Scan(&pendingReports); err != nil {
		err = fmt.Errorf("count pending reports: %w", err)
		return
	}
	return
}
