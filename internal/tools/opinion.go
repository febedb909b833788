// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Post is one social platform post with its comments.
type Post struct {
	ID          string    `json:"id" yaml:"id"`
	Platform    string    `json:"platform" yaml:"platform"`
	Title       string    `json:"title" yaml:"title"`
	Content     string    `json:"content" yaml:"content"`
	URL         string    `json:"url" yaml:"url"`
	Author      string    `json:"author" yaml:"author"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
	Likes       int       `json:"likes" yaml:"likes"`
	Comments    int       `json:"comments" yaml:"comments"`
	Shares      int       `json:"shares" yaml:"shares"`
	Replies     []Comment `json:"replies,omitempty" yaml:"replies,omitempty"`
}

// Comment is a user comment under a Post.
type Comment struct {
	ID          string    `json:"id" yaml:"id"`
	Content     string    `json:"content" yaml:"content"`
	Author      string    `json:"author" yaml:"author"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
	Likes       int       `json:"likes" yaml:"likes"`
}

// OpinionDB serves the database search tools from a SQLite file with FTS5
// indexes over posts and comments.
type OpinionDB struct {
	db         *sql.DB
	maxResults int
	now        func() time.Time
}

// OpenOpinionDB opens or creates the opinion database at path and creates
// the schema if it does not exist.
func OpenOpinionDB(path string, maxResults int) (*OpinionDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if maxResults <= 0 {
		maxResults = 10
	}

	o := &OpinionDB{db: db, maxResults: maxResults, now: time.Now}
	if err := o.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return o, nil
}

// Close releases the database connection.
func (o *OpinionDB) Close() error {
	return o.db.Close()
}

func (o *OpinionDB) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			platform TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			url TEXT,
			author TEXT,
			published_at TEXT NOT NULL,
			likes INTEGER DEFAULT 0,
			comments INTEGER DEFAULT 0,
			shares INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			author TEXT,
			published_at TEXT NOT NULL,
			likes INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_platform ON posts(platform)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id)`,
	}
	for _, stmt := range statements {
		if _, err := o.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual tables with triggers for sync.
	var ftsExists int
	if err := o.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='posts_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE posts_fts USING fts5(title, content, content=posts, content_rowid=rowid)`,
		`CREATE TRIGGER posts_ai AFTER INSERT ON posts BEGIN
			INSERT INTO posts_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
		END`,
		`CREATE TRIGGER posts_ad AFTER DELETE ON posts BEGIN
			INSERT INTO posts_fts(posts_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
		END`,
		`CREATE TRIGGER posts_au AFTER UPDATE ON posts BEGIN
			INSERT INTO posts_fts(posts_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
			INSERT INTO posts_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
		END`,
		`CREATE VIRTUAL TABLE comments_fts USING fts5(content, content=comments, content_rowid=rowid)`,
		`CREATE TRIGGER comments_ai AFTER INSERT ON comments BEGIN
			INSERT INTO comments_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
		`CREATE TRIGGER comments_ad AFTER DELETE ON comments BEGIN
			INSERT INTO comments_fts(comments_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		END`,
		`CREATE TRIGGER comments_au AFTER UPDATE ON comments BEGIN
			INSERT INTO comments_fts(comments_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			INSERT INTO comments_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := o.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// LoadPosts reads a YAML list of posts.
func LoadPosts(path string) ([]Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading posts %s: %w", path, err)
	}
	var posts []Post
	if err := yaml.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("parsing posts %s: %w", path, err)
	}
	return posts, nil
}

// Ingest upserts posts and their comments in one transaction.
func (o *OpinionDB) Ingest(ctx context.Context, posts []Post) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	postStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO posts (id, platform, title, content, url, author, published_at, likes, comments, shares)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			platform=excluded.platform, title=excluded.title, content=excluded.content,
			url=excluded.url, author=excluded.author, published_at=excluded.published_at,
			likes=excluded.likes, comments=excluded.comments, shares=excluded.shares`)
	if err != nil {
		return fmt.Errorf("preparing post insert: %w", err)
	}
	defer postStmt.Close()

	commentStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO comments (id, post_id, content, author, published_at, likes)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			post_id=excluded.post_id, content=excluded.content, author=excluded.author,
			published_at=excluded.published_at, likes=excluded.likes`)
	if err != nil {
		return fmt.Errorf("preparing comment insert: %w", err)
	}
	defer commentStmt.Close()

	for _, p := range posts {
		platform, ok := types.ParsePlatform(p.Platform)
		if !ok {
			return fmt.Errorf("post %s: unknown platform %q", p.ID, p.Platform)
		}
		if _, err := postStmt.ExecContext(ctx,
			p.ID, string(platform), p.Title, p.Content, p.URL, p.Author,
			formatTime(p.PublishedAt), p.Likes, p.Comments, p.Shares,
		); err != nil {
			return fmt.Errorf("upserting post %s: %w", p.ID, err)
		}
		for _, c := range p.Replies {
			published := c.PublishedAt
			if published.IsZero() {
				published = p.PublishedAt
			}
			if _, err := commentStmt.ExecContext(ctx,
				c.ID, p.ID, c.Content, c.Author, formatTime(published), c.Likes,
			); err != nil {
				return fmt.Errorf("upserting comment %s: %w", c.ID, err)
			}
		}
	}

	return tx.Commit()
}

// Invoke runs one of the database tools.
func (o *OpinionDB) Invoke(ctx context.Context, d types.SearchDecision) ([]types.SearchItem, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	var (
		items []types.SearchItem
		err   error
	)
	switch d.Tool {
	case types.ToolHotContent:
		items, err = o.hotContent(ctx, d.TimePeriod)
	case types.ToolTopicGlobally:
		items, err = o.searchAll(ctx, d.Query, filter{})
	case types.ToolTopicByDate:
		from, to, _ := parseRange(d.StartDate, d.EndDate)
		items, err = o.searchAll(ctx, d.Query, filter{from: from, to: to})
	case types.ToolCommentsForTopic:
		items, err = o.searchComments(ctx, d.Query, filter{}, o.maxResults)
	case types.ToolTopicOnPlatform:
		platform, _ := types.ParsePlatform(d.Platform)
		f := filter{platform: string(platform)}
		if d.StartDate != "" {
			f.from, f.to, _ = parseRange(d.StartDate, d.EndDate)
		}
		items, err = o.searchAll(ctx, d.Query, f)
	default:
		return nil, &ToolError{Tool: d.Tool, Reason: "not served by the opinion database"}
	}
	if err != nil {
		return nil, &ToolError{Tool: d.Tool, Reason: "database query failed", Err: err}
	}
	return items, nil
}

// filter narrows a full-text query.
type filter struct {
	platform string
	from, to time.Time
}

func (f filter) apply(qb *strings.Builder, args []any, alias string) []any {
	if f.platform != "" {
		fmt.Fprintf(qb, ` AND %s.platform = ?`, alias)
		args = append(args, f.platform)
	}
	if !f.from.IsZero() {
		fmt.Fprintf(qb, ` AND %s.published_at >= ? AND %s.published_at < ?`, alias, alias)
		args = append(args, formatTime(f.from), formatTime(f.to))
	}
	return args
}

func (o *OpinionDB) hotContent(ctx context.Context, period string) ([]types.SearchItem, error) {
	since, err := periodStart(o.now(), period)
	if err != nil {
		return nil, err
	}

	rows, err := o.db.QueryContext(ctx,
		`SELECT platform, title, content, url, likes + 2*comments + 3*shares AS hot
		 FROM posts
		 WHERE published_at >= ?
		 ORDER BY hot DESC, published_at DESC
		 LIMIT ?`, formatTime(since), o.maxResults)
	if err != nil {
		return nil, fmt.Errorf("querying hot content: %w", err)
	}
	defer rows.Close()

	var (
		items []types.SearchItem
		hots  []float64
	)
	for rows.Next() {
		var (
			platform, title, content, url string
			hot                           float64
		)
		if err := rows.Scan(&platform, &title, &content, &url, &hot); err != nil {
			return nil, fmt.Errorf("scanning hot content: %w", err)
		}
		items = append(items, types.SearchItem{
			Title:   labelTitle(platform, title, content),
			URL:     url,
			Content: content,
		})
		hots = append(hots, hot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Normalize hotness against the hottest post.
	if len(hots) > 0 && hots[0] > 0 {
		for i := range items {
			items[i].Score = score(hots[i] / hots[0])
		}
	}
	return items, nil
}

func (o *OpinionDB) searchAll(ctx context.Context, query string, f filter) ([]types.SearchItem, error) {
	posts, err := o.searchPosts(ctx, query, f)
	if err != nil {
		return nil, err
	}
	comments, err := o.searchComments(ctx, query, f, o.maxResults)
	if err != nil {
		return nil, err
	}

	items := append(posts, comments...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ScoreOrZero() > items[j].ScoreOrZero()
	})
	if len(items) > o.maxResults {
		items = items[:o.maxResults]
	}
	return items, nil
}

func (o *OpinionDB) searchPosts(ctx context.Context, query string, f filter) ([]types.SearchItem, error) {
	var qb strings.Builder
	qb.WriteString(
		`SELECT p.platform, p.title, p.content, p.url, bm25(posts_fts) AS rank
		FROM posts_fts
		JOIN posts p ON p.rowid = posts_fts.rowid
		WHERE posts_fts MATCH ?`)
	args := []any{ftsQuery(query)}
	args = f.apply(&qb, args, "p")
	qb.WriteString(` ORDER BY rank LIMIT ?`)
	args = append(args, o.maxResults)

	rows, err := o.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching posts: %w", err)
	}
	defer rows.Close()

	var items []types.SearchItem
	for rows.Next() {
		var (
			platform, title, content, url string
			rank                          float64
		)
		if err := rows.Scan(&platform, &title, &content, &url, &rank); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		items = append(items, types.SearchItem{
			Title:   labelTitle(platform, title, content),
			URL:     url,
			Content: content,
			Score:   score(relevance(rank)),
		})
	}
	return items, rows.Err()
}

func (o *OpinionDB) searchComments(ctx context.Context, query string, f filter, limit int) ([]types.SearchItem, error) {
	var qb strings.Builder
	qb.WriteString(
		`SELECT p.platform, p.title, c.content, p.url, bm25(comments_fts) AS rank
		FROM comments_fts
		JOIN comments c ON c.rowid = comments_fts.rowid
		JOIN posts p ON p.id = c.post_id
		WHERE comments_fts MATCH ?`)
	args := []any{ftsQuery(query)}
	if !f.from.IsZero() {
		qb.WriteString(` AND c.published_at >= ? AND c.published_at < ?`)
		args = append(args, formatTime(f.from), formatTime(f.to))
		f.from, f.to = time.Time{}, time.Time{}
	}
	args = f.apply(&qb, args, "p")
	qb.WriteString(` ORDER BY rank LIMIT ?`)
	args = append(args, limit)

	rows, err := o.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching comments: %w", err)
	}
	defer rows.Close()

	var items []types.SearchItem
	for rows.Next() {
		var (
			platform, title, content, url string
			rank                          float64
		)
		if err := rows.Scan(&platform, &title, &content, &url, &rank); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		items = append(items, types.SearchItem{
			Title:   "[" + platform + " comment] " + firstNonEmpty(title, "untitled post"),
			URL:     url,
			Content: content,
			Score:   score(relevance(rank)),
		})
	}
	return items, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR query of quoted terms so user
// input never reaches the FTS syntax parser unescaped.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}

// relevance maps an FTS5 bm25 rank (lower is better, usually negative) to (0,1).
func relevance(rank float64) float64 {
	s := -rank
	if s < 0 {
		s = 0
	}
	return s / (1 + s)
}

func labelTitle(platform, title, content string) string {
	if title == "" {
		r := []rune(content)
		if len(r) > 40 {
			r = r[:40]
		}
		title = string(r)
	}
	return "[" + platform + "] " + title
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
