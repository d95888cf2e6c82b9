package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS worlds (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		premise TEXT NOT NULL DEFAULT '',
		canon_summary TEXT,
		year_setting INTEGER NOT NULL DEFAULT 0,
		causal_chain JSONB,
		scientific_basis TEXT,
		regions JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		dweller_count INTEGER NOT NULL DEFAULT 0,
		follower_count INTEGER NOT NULL DEFAULT 0,
		comment_count INTEGER NOT NULL DEFAULT 0,
		reaction_counts JSONB,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS dwellers (
		id UUID PRIMARY KEY,
		world_id UUID NOT NULL REFERENCES worlds(id),
		name TEXT NOT NULL,
		role TEXT,
		age INTEGER,
		origin_region TEXT,
		personality TEXT,
		background TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		inhabited BOOLEAN NOT NULL DEFAULT FALSE,
		last_action_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS dweller_actions (
		id UUID PRIMARY KEY,
		dweller_id UUID NOT NULL REFERENCES dwellers(id),
		action_type TEXT NOT NULL,
		content TEXT,
		target TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS stories (
		id UUID PRIMARY KEY,
		world_id UUID NOT NULL REFERENCES worlds(id),
		title TEXT NOT NULL,
		summary TEXT,
		content TEXT NOT NULL DEFAULT '',
		status TEXT,
		perspective TEXT,
		reaction_count INTEGER NOT NULL DEFAULT 0,
		comment_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		time_period_start TEXT,
		time_period_end TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dwellers_world ON dwellers(world_id)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_dweller ON dweller_actions(dweller_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stories_world ON stories(world_id)`,
}

// sqliteSchema derives the lite-mode DDL from the Postgres one.
func sqliteSchema() []string {
	r := strings.NewReplacer(
		"UUID", "TEXT",
		"JSONB", "TEXT",
		"TIMESTAMPTZ", "DATETIME",
		"DEFAULT NOW()", "DEFAULT CURRENT_TIMESTAMP",
	)
	out := make([]string, len(postgresSchema))
	for i, stmt := range postgresSchema {
		out[i] = r.Replace(stmt)
	}
	return out
}

// Migrate creates the corpus tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := postgresSchema
	if dialect == SQLite {
		stmts = sqliteSchema()
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SeedNamespace derives stable IDs for demo records so repeated seeding is
// idempotent.
var SeedNamespace = uuid.MustParse("6f1d2c3a-7b44-4e0a-9a1e-5d0c8f3b2a10")

// SeedID returns the deterministic ID of a named demo record.
func SeedID(name string) string {
	return uuid.NewSHA1(SeedNamespace, []byte(name)).String()
}

// Corpus is a set of records to insert, used by `migrate --seed` and tests.
type Corpus struct {
	Worlds   []World
	Dwellers []Dweller
	Actions  []Action
	Stories  []Story
}

// Seed inserts a corpus inside one transaction. Records whose IDs already
// exist are skipped.
func Seed(ctx context.Context, db *sql.DB, dialect Dialect, c Corpus) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	f := &SQLFacade{dialect: dialect}
	ignore := " ON CONFLICT (id) DO NOTHING"

	for _, w := range c.Worlds {
		chain, _ := json.Marshal(w.CausalChain)
		regions, _ := json.Marshal(w.Regions)
		reactions, _ := json.Marshal(w.ReactionCounts)
		_, err := tx.ExecContext(ctx, f.rebind(`INSERT INTO worlds (`+worldColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+ignore),
			w.ID, w.Name, w.Premise, nullString(w.CanonSummary), w.YearSetting, string(chain),
			nullString(w.ScientificBasis), string(regions), w.CreatedAt, w.UpdatedAt,
			w.DwellerCount, w.FollowerCount, w.CommentCount, string(reactions), w.IsActive)
		if err != nil {
			return fmt.Errorf("seed world %s: %w", w.Name, err)
		}
	}
	for _, d := range c.Dwellers {
		var last any
		if d.LastActionAt != nil {
			last = *d.LastActionAt
		}
		_, err := tx.ExecContext(ctx, f.rebind(`INSERT INTO dwellers (`+dwellerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+ignore),
			d.ID, d.WorldID, d.Name, nullString(d.Role), d.Age, nullString(d.OriginRegion),
			nullString(d.Personality), nullString(d.Background), d.IsActive, d.IsAvailable, d.Inhabited, last)
		if err != nil {
			return fmt.Errorf("seed dweller %s: %w", d.Name, err)
		}
	}
	for _, a := range c.Actions {
		_, err := tx.ExecContext(ctx, f.rebind(`INSERT INTO dweller_actions (id, dweller_id, action_type, content, target, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`+ignore),
			a.ID, a.DwellerID, a.ActionType, nullString(a.Content), nullString(a.Target), a.CreatedAt)
		if err != nil {
			return fmt.Errorf("seed action %s: %w", a.ID, err)
		}
	}
	for _, s := range c.Stories {
		_, err := tx.ExecContext(ctx, f.rebind(`INSERT INTO stories (`+storyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+ignore),
			s.ID, s.WorldID, s.Title, nullString(s.Summary), s.Content, nullString(s.Status),
			nullString(s.Perspective), s.ReactionCount, s.CommentCount, s.CreatedAt,
			nullString(s.TimePeriodStart), nullString(s.TimePeriodEnd))
		if err != nil {
			return fmt.Errorf("seed story %s: %w", s.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// DemoCorpus is a small, self-consistent corpus for lite mode and tests.
func DemoCorpus() Corpus {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(hours int) time.Time { return base.Add(time.Duration(hours) * time.Hour) }
	ptr := func(t time.Time) *time.Time { return &t }

	cascade := SeedID("world/cascade-protocol")
	tidal := SeedID("world/tidal-commons")
	orbital := SeedID("world/orbital-quiet")

	worlds := []World{
		{
			ID:           cascade,
			Name:         "Cascade Protocol",
			Premise:      "Megacities run on a distributed water-rights ledger after the 2040s aquifer collapse.",
			CanonSummary: "Megacities trade water as programmable rights; scarcity is negotiated block by block.",
			YearSetting:  2091,
			CausalChain: []CausalEvent{
				{Year: 2038, Event: "Central Valley aquifer collapse", Consequence: "Federal water rationing"},
				{Year: 2052, Event: "Municipal water ledgers go live", Consequence: "Rights become tradable"},
				{Year: 2077, Event: "Cascade settlement treaty", Consequence: "Megacities federate their ledgers"},
			},
			ScientificBasis: "Managed aquifer recharge and metered distribution networks.",
			Regions:         []Region{{Name: "Sacramento Arcology", Location: "Northern California"}, {Name: "Delta Reach"}},
			CreatedAt:       at(0),
			UpdatedAt:       at(72),
			DwellerCount:    2,
			FollowerCount:   128,
			CommentCount:    14,
			ReactionCounts:  map[string]int{"fire": 9, "mind_blown": 21},
			IsActive:        true,
		},
		{
			ID:             tidal,
			Name:           "Tidal Commons",
			Premise:        "Coastal towns govern drowned districts as shared kelp farms.",
			YearSetting:    2064,
			CreatedAt:      at(24),
			UpdatedAt:      at(30),
			DwellerCount:   1,
			FollowerCount:  64,
			ReactionCounts: map[string]int{},
			IsActive:       true,
		},
		{
			ID:            orbital,
			Name:          "Orbital Quiet",
			Premise:       "A moratorium on new satellites leaves low orbit to salvage crews.",
			YearSetting:   2110,
			CreatedAt:     at(48),
			UpdatedAt:     at(49),
			FollowerCount: 12,
			IsActive:      true,
		},
	}

	mara := SeedID("dweller/mara-okafor")
	teo := SeedID("dweller/teo-lindqvist")
	ines := SeedID("dweller/ines-arroyo")

	dwellers := []Dweller{
		{
			ID: mara, WorldID: cascade, Name: "Mara Okafor", Role: "Ledger auditor", Age: 34,
			OriginRegion: "Sacramento Arcology",
			Personality:  "Meticulous and wry, Mara trusts numbers more than people but keeps a soft spot for small farmers.",
			Background:   "Raised in a ration queue, Mara learned to read meter logs before she could read novels.",
			IsActive:     true, IsAvailable: true, LastActionAt: ptr(at(70)),
		},
		{
			ID: teo, WorldID: cascade, Name: "Teo Lindqvist", Role: "Pipe diver", Age: 27,
			OriginRegion: "Delta Reach",
			Personality:  "Restless and funny.",
			Background:   "Teo maintains the deep mains under the old levees.",
			IsActive:     true, IsAvailable: false, Inhabited: true,
		},
		{
			ID: ines, WorldID: tidal, Name: "Ines Arroyo", Role: "Kelp steward", Age: 51,
			OriginRegion: "Old Harbor",
			Personality:  "Patient.",
			Background:   "Ines voted for the first drowned-district charter.",
			IsActive:     true, IsAvailable: true, LastActionAt: ptr(at(40)),
		},
	}

	actions := []Action{
		{ID: SeedID("action/mara-1"), DwellerID: mara, ActionType: "speak", Content: "Flagged a ledger fork in the Delta Reach allotments.", Target: "Council of Meters", CreatedAt: at(60)},
		{ID: SeedID("action/mara-2"), DwellerID: mara, ActionType: "move", Content: "Walked the night shift along the aqueduct.", CreatedAt: at(70)},
		{ID: SeedID("action/ines-1"), DwellerID: ines, ActionType: "observe", Content: "Counted the spring kelp bloom.", CreatedAt: at(40)},
	}

	stories := []Story{
		{
			ID: SeedID("story/the-last-meter"), WorldID: cascade, Title: "The Last Meter",
			Summary: "An auditor finds a ledger that should not exist.",
			Content: "The meter ticked once, then never again. Mara knew the sound of a dead ledger.",
			Status:  "PUBLISHED", Perspective: "FIRST_PERSON_AGENT",
			ReactionCount: 42, CommentCount: 5, CreatedAt: at(50),
			TimePeriodStart: "2091-04", TimePeriodEnd: "2091-05",
		},
		{
			ID: SeedID("story/under-the-levee"), WorldID: cascade, Title: "Under the Levee",
			Content: "Teo counted the seconds between the pumps. Forty. Then thirty-nine.",
			Status:  "PUBLISHED", Perspective: "THIRD_PERSON_LIMITED",
			ReactionCount: 17, CreatedAt: at(66),
		},
		{
			ID: SeedID("story/bloom"), WorldID: tidal, Title: "Bloom",
			Summary: "A steward and a storm.",
			Content: "The kelp rose early that year.",
			Status:  "PUBLISHED", Perspective: "FIRST_PERSON_AGENT",
			ReactionCount: 3, CreatedAt: at(36),
		},
	}

	return Corpus{Worlds: worlds, Dwellers: dwellers, Actions: actions, Stories: stories}
}
