package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax and DDL for a SQL backend.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3", "lite":
		return SQLite, nil
	default:
		return Postgres, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Open opens a database handle for the given driver and verifies nothing;
// the first query (or Ping) establishes connectivity.
func Open(driver, dsn string, maxOpenConns int) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, dialect, err
	}
	driverName := "postgres"
	if dialect == SQLite {
		driverName = "sqlite"
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, dialect, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// a single writer keeps in-memory databases on one connection
		db.SetMaxOpenConns(1)
	} else if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return db, dialect, nil
}

// Options tunes an SQLFacade.
type Options struct {
	MaxLimit     int
	QueryTimeout time.Duration
}

// SQLFacade implements Facade over database/sql. Each operation acquires a
// dedicated connection and releases it on every exit path.
type SQLFacade struct {
	db       *sql.DB
	dialect  Dialect
	maxLimit int
	timeout  time.Duration
}

// NewSQLFacade wraps an open database handle.
func NewSQLFacade(db *sql.DB, dialect Dialect, opts Options) *SQLFacade {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxLimit
	}
	return &SQLFacade{db: db, dialect: dialect, maxLimit: opts.MaxLimit, timeout: opts.QueryTimeout}
}

const (
	worldColumns = `id, name, premise, canon_summary, year_setting, causal_chain, scientific_basis, regions,
		created_at, updated_at, dweller_count, follower_count, comment_count, reaction_counts, is_active`
	dwellerColumns = `id, world_id, name, role, age, origin_region, personality, background,
		is_active, is_available, inhabited, last_action_at`
	storyColumns = `id, world_id, title, summary, content, status, perspective, reaction_count,
		comment_count, created_at, time_period_start, time_period_end`
	actionColumns = `a.id, a.dweller_id, a.action_type, a.content, a.target, a.created_at`
)

func (f *SQLFacade) SearchWorlds(ctx context.Context, keyword string, limit int) ([]World, error) {
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"
	query := `SELECT ` + worldColumns + ` FROM worlds
		WHERE is_active = TRUE
		  AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(premise) LIKE ? ESCAPE '\')
		ORDER BY follower_count DESC, id
		LIMIT ?`
	return f.queryWorlds(ctx, query, pattern, pattern, ClampLimit(limit, f.maxLimit))
}

func (f *SQLFacade) ListWorlds(ctx context.Context, sort SortMode, limit int) ([]World, error) {
	var order string
	switch ParseSortMode(string(sort)) {
	case SortPopular:
		order = "follower_count DESC"
	case SortActive:
		order = "updated_at DESC"
	default:
		order = "created_at DESC"
	}
	query := `SELECT ` + worldColumns + ` FROM worlds
		WHERE is_active = TRUE
		ORDER BY ` + order + `, id
		LIMIT ?`
	return f.queryWorlds(ctx, query, ClampLimit(limit, f.maxLimit))
}

func (f *SQLFacade) GetWorld(ctx context.Context, id string) (World, error) {
	id, err := ParseID(id)
	if err != nil {
		return World{}, err
	}
	var w World
	err = f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, f.rebind(`SELECT `+worldColumns+` FROM worlds WHERE id = ?`), id)
		var scanErr error
		w, scanErr = scanWorld(row)
		return scanErr
	})
	if err != nil {
		return World{}, classify(err, "get world")
	}
	return w, nil
}

func (f *SQLFacade) WorldName(ctx context.Context, id string) (string, error) {
	id, err := ParseID(id)
	if err != nil {
		return "", err
	}
	var name string
	err = f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, f.rebind(`SELECT name FROM worlds WHERE id = ?`), id).Scan(&name)
	})
	if err != nil {
		return "", classify(err, "world name")
	}
	return name, nil
}

func (f *SQLFacade) ListStories(ctx context.Context, worldID string, limit int) ([]Story, error) {
	return f.queryStories(ctx, worldID, "reaction_count DESC", limit)
}

func (f *SQLFacade) RecentStories(ctx context.Context, worldID string, limit int) ([]Story, error) {
	return f.queryStories(ctx, worldID, "created_at DESC", limit)
}

func (f *SQLFacade) GetStory(ctx context.Context, id string) (Story, error) {
	id, err := ParseID(id)
	if err != nil {
		return Story{}, err
	}
	var s Story
	err = f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, f.rebind(`SELECT `+storyColumns+` FROM stories WHERE id = ?`), id)
		var scanErr error
		s, scanErr = scanStory(row)
		return scanErr
	})
	if err != nil {
		return Story{}, classify(err, "get story")
	}
	return s, nil
}

func (f *SQLFacade) ListDwellers(ctx context.Context, worldID string, limit int) ([]Dweller, error) {
	worldID, err := ParseID(worldID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + dwellerColumns + ` FROM dwellers
		WHERE world_id = ? AND is_active = TRUE
		ORDER BY last_action_at DESC NULLS LAST, id
		LIMIT ?`
	var out []Dweller
	err = f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, f.rebind(query), worldID, ClampLimit(limit, f.maxLimit))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDweller(rows)
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify(err, "list dwellers")
	}
	return out, nil
}

func (f *SQLFacade) GetDweller(ctx context.Context, id string) (Dweller, error) {
	id, err := ParseID(id)
	if err != nil {
		return Dweller{}, err
	}
	var d Dweller
	err = f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, f.rebind(`SELECT `+dwellerColumns+` FROM dwellers WHERE id = ?`), id)
		var scanErr error
		d, scanErr = scanDweller(row)
		return scanErr
	})
	if err != nil {
		return Dweller{}, classify(err, "get dweller")
	}
	return d, nil
}

func (f *SQLFacade) RecentActions(ctx context.Context, dwellerID string, limit int) ([]Action, error) {
	dwellerID, err := ParseID(dwellerID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + actionColumns + ` FROM dweller_actions a
		WHERE a.dweller_id = ?
		ORDER BY a.created_at DESC, a.id
		LIMIT ?`
	return f.queryActions(ctx, "recent actions", query, dwellerID, ClampLimit(limit, f.maxLimit))
}

func (f *SQLFacade) ListActivity(ctx context.Context, worldID string, limit int) ([]Action, error) {
	worldID, err := ParseID(worldID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + actionColumns + ` FROM dweller_actions a
		JOIN dwellers d ON a.dweller_id = d.id
		WHERE d.world_id = ?
		ORDER BY a.created_at DESC, a.id
		LIMIT ?`
	return f.queryActions(ctx, "list activity", query, worldID, ClampLimit(limit, f.maxLimit))
}

func (f *SQLFacade) AggregateStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM worlds WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM dwellers WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM stories),
			(SELECT COALESCE(SUM(follower_count), 0) FROM worlds)`)
		return row.Scan(&s.WorldCount, &s.DwellerCount, &s.StoryCount, &s.TotalFollowers)
	})
	if err != nil {
		return Stats{}, classify(err, "aggregate stats")
	}
	return s, nil
}

// Ping reports whether the store is reachable.
func (f *SQLFacade) Ping(ctx context.Context) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	if err := f.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return nil
}

func (f *SQLFacade) queryWorlds(ctx context.Context, query string, args ...any) ([]World, error) {
	var out []World
	err := f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, f.rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			w, err := scanWorld(rows)
			if err != nil {
				return err
			}
			out = append(out, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify(err, "query worlds")
	}
	return out, nil
}

func (f *SQLFacade) queryStories(ctx context.Context, worldID, order string, limit int) ([]Story, error) {
	worldID, err := ParseID(worldID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + storyColumns + ` FROM stories
		WHERE world_id = ?
		ORDER BY ` + order + `, id
		LIMIT ?`
	var out []Story
	err = f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, f.rebind(query), worldID, ClampLimit(limit, f.maxLimit))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			s, err := scanStory(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify(err, "query stories")
	}
	return out, nil
}

func (f *SQLFacade) queryActions(ctx context.Context, op, query string, args ...any) ([]Action, error) {
	var out []Action
	err := f.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, f.rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAction(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify(err, op)
	}
	return out, nil
}

// withConn scopes one connection to fn. The connection goes back to the
// pool whether fn returns, fails or panics.
func (f *SQLFacade) withConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", ErrUpstreamUnavailable, err)
	}
	defer conn.Close()
	return fn(ctx, conn)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (f *SQLFacade) rebind(query string) string {
	if f.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// classify maps driver errors onto the facade's sentinel errors.
func classify(err error, op string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, ErrUpstreamUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorld(r rowScanner) (World, error) {
	var (
		w                         World
		canon, basis              sql.NullString
		chain, regions, reactions []byte
	)
	err := r.Scan(&w.ID, &w.Name, &w.Premise, &canon, &w.YearSetting, &chain, &basis, &regions,
		&w.CreatedAt, &w.UpdatedAt, &w.DwellerCount, &w.FollowerCount, &w.CommentCount, &reactions, &w.IsActive)
	if err != nil {
		return World{}, err
	}
	w.CanonSummary = canon.String
	w.ScientificBasis = basis.String
	decodeColumn(w.ID, "causal_chain", chain, &w.CausalChain)
	decodeColumn(w.ID, "regions", regions, &w.Regions)
	decodeColumn(w.ID, "reaction_counts", reactions, &w.ReactionCounts)
	return w, nil
}

func scanDweller(r rowScanner) (Dweller, error) {
	var (
		d        Dweller
		role     sql.NullString
		age      sql.NullInt64
		region   sql.NullString
		persona  sql.NullString
		history  sql.NullString
		lastSeen sql.NullTime
	)
	err := r.Scan(&d.ID, &d.WorldID, &d.Name, &role, &age, &region, &persona, &history,
		&d.IsActive, &d.IsAvailable, &d.Inhabited, &lastSeen)
	if err != nil {
		return Dweller{}, err
	}
	d.Role = role.String
	d.Age = int(age.Int64)
	d.OriginRegion = region.String
	d.Personality = persona.String
	d.Background = history.String
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastActionAt = &t
	}
	return d, nil
}

func scanStory(r rowScanner) (Story, error) {
	var (
		s                      Story
		summary                sql.NullString
		status, perspective    sql.NullString
		periodStart, periodEnd sql.NullString
	)
	err := r.Scan(&s.ID, &s.WorldID, &s.Title, &summary, &s.Content, &status, &perspective,
		&s.ReactionCount, &s.CommentCount, &s.CreatedAt, &periodStart, &periodEnd)
	if err != nil {
		return Story{}, err
	}
	s.Summary = summary.String
	s.Status = status.String
	s.Perspective = perspective.String
	s.TimePeriodStart = periodStart.String
	s.TimePeriodEnd = periodEnd.String
	return s, nil
}

func scanAction(r rowScanner) (Action, error) {
	var (
		a               Action
		content, target sql.NullString
	)
	if err := r.Scan(&a.ID, &a.DwellerID, &a.ActionType, &content, &target, &a.CreatedAt); err != nil {
		return Action{}, err
	}
	a.Content = content.String
	a.Target = target.String
	return a, nil
}

// decodeColumn unmarshals a JSON column. Unreadable values degrade to the
// zero value so one bad row never fails a listing.
func decodeColumn(id, column string, raw []byte, dst any) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Warn("store: undecodable json column", "id", id, "column", column, "err", err)
	}
}
