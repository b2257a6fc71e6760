// Package decisionlog 把每一轮的逐标的裁决写入 SQLite，供查询与复盘。
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"arbiter/internal/agent"
	"arbiter/internal/governor"
)

const defaultListLimit = 50

// Store 是活动日志，实现 governor.Journal 与 governor.Resetter。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

var (
	_ governor.Journal  = (*Store)(nil)
	_ governor.Resetter = (*Store)(nil)
)

// Entry 是一条逐标的记录。
type Entry struct {
	ID         int64           `json:"id"`
	LoopID     string          `json:"loop_id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Action     agent.Action    `json:"action"`
	Score      float64         `json:"score"`
	Outcome    string          `json:"outcome"`
	ExecStatus string          `json:"exec_status,omitempty"`
	ExecReason string          `json:"exec_reason,omitempty"`
	Reasoning  string          `json:"reasoning"`
	Breakdown  json.RawMessage `json:"breakdown,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type agentSummary struct {
	Agent      agent.Role     `json:"agent"`
	Action     agent.Action   `json:"action"`
	Decisions  []agent.Action `json:"decisions"`
	Confidence float64        `json:"confidence"`
	Notes      []string       `json:"notes,omitempty"`
}

type breakdown struct {
	Agents        []agentSummary `json:"agents"`
	TopCandidates any            `json:"top_candidates"`
	OverlayRules  []string       `json:"overlay_rules,omitempty"`
	VetoApplied   bool           `json:"veto_applied"`
	Reallocate    bool           `json:"reallocate"`
	MarketPrice   float64        `json:"market_price,omitempty"`
	Execution     any            `json:"execution,omitempty"`
}

// NewStore 打开（必要时创建）日志库。
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("decision log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			loop_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			exec_status TEXT,
			exec_reason TEXT,
			reasoning TEXT,
			breakdown_json TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_log_user_ts ON decision_log(user_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_log_loop ON decision_log(loop_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("decision log schema: %w", err)
		}
	}
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("decision log store 已关闭")
	}
	return s.db, nil
}

// RecordLoop 在一个事务里写入本轮所有标的。
func (s *Store) RecordLoop(ctx context.Context, rep governor.Report) error {
	if len(rep.Symbols) == 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO decision_log
		(loop_id, user_id, symbol, action, score, outcome, exec_status, exec_reason, reasoning, breakdown_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	at := rep.At
	if at.IsZero() {
		at = time.Now()
	}
	for _, sym := range rep.Symbols {
		raw, err := json.Marshal(buildBreakdown(sym))
		if err != nil {
			return err
		}
		var status, reason string
		if sym.Execution != nil {
			status, reason = string(sym.Execution.Status), sym.Execution.Reason
		}
		d := sym.Decision
		if _, err := stmt.ExecContext(ctx, rep.LoopID, rep.UserID, sym.Symbol, string(d.FinalAction), d.IntentScore,
			string(rep.Outcome), status, reason, d.Reasoning, string(raw), at.UnixMilli()); err != nil {
			return fmt.Errorf("insert decision %s: %w", sym.Symbol, err)
		}
	}
	return tx.Commit()
}

func buildBreakdown(sym governor.SymbolReport) breakdown {
	out := breakdown{
		Agents:        make([]agentSummary, 0, len(sym.Agents)),
		TopCandidates: sym.Decision.TopCandidates,
		OverlayRules:  sym.Decision.OverlayRules,
		VetoApplied:   sym.Decision.VetoApplied,
		Reallocate:    sym.Decision.Reallocate,
		MarketPrice:   sym.Decision.MarketPrice,
	}
	if sym.Execution != nil {
		out.Execution = sym.Execution
	}
	for _, r := range sym.Agents {
		out.Agents = append(out.Agents, agentSummary{
			Agent:      r.AgentID,
			Action:     r.PrimaryAction,
			Decisions:  r.Decisions,
			Confidence: r.Confidence,
			Notes:      r.Notes,
		})
	}
	return out
}

// Query 过滤条件；Symbol 为空表示全部。
type Query struct {
	UserID string
	Symbol string
	Limit  int
}

// List 按时间倒序返回记录。
func (s *Store) List(ctx context.Context, q Query) ([]Entry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT id, loop_id, user_id, symbol, action, score, outcome,
		COALESCE(exec_status, ''), COALESCE(exec_reason, ''), COALESCE(reasoning, ''), COALESCE(breakdown_json, ''), created_at
		FROM decision_log WHERE user_id = ?`
	args := []any{q.UserID}
	if q.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, q.Symbol)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var action, raw string
		var ts int64
		if err := rows.Scan(&e.ID, &e.LoopID, &e.UserID, &e.Symbol, &action, &e.Score, &e.Outcome,
			&e.ExecStatus, &e.ExecReason, &e.Reasoning, &raw, &ts); err != nil {
			return nil, err
		}
		e.Action = agent.Action(action)
		if raw != "" {
			e.Breakdown = json.RawMessage(raw)
		}
		e.CreatedAt = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear 删除某个用户的全部记录，账户重置时调用。
func (s *Store) Clear(ctx context.Context, userID string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM decision_log WHERE user_id = ?`, userID)
	return err
}
