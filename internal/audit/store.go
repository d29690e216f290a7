// Package audit persists the coordinator's decisions, messages and workflow
// runs to sqlite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/coordinator"
	"github.com/aristath/aegis/internal/database"
	"github.com/aristath/aegis/internal/domain"
)

// writeTimeout bounds observer writes, which have no caller context.
const writeTimeout = 5 * time.Second

// DecisionRecord is a stored decision.
type DecisionRecord struct {
	ID             string                 `json:"id"`
	Agent          string                 `json:"agent"`
	DecisionType   domain.DecisionType    `json:"decision_type"`
	Kind           string                 `json:"kind"`
	Confidence     float64                `json:"confidence"`
	Reasoning      string                 `json:"reasoning"`
	Recommendation map[string]interface{} `json:"recommendation"`
	Metadata       map[string]interface{} `json:"metadata"`
	DecidedAt      time.Time              `json:"decided_at"`
	LoggedAt       time.Time              `json:"logged_at"`
}

// MessageRecord is a stored message.
type MessageRecord struct {
	ID            string                 `json:"id"`
	Sender        string                 `json:"sender"`
	Recipient     string                 `json:"recipient"`
	Type          string                 `json:"message_type"`
	Priority      domain.Priority        `json:"priority"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	SentAt        time.Time              `json:"sent_at"`
}

// WorkflowRecord is a stored workflow run.
type WorkflowRecord struct {
	ID          string                 `json:"id"`
	Workflow    string                 `json:"workflow"`
	Success     bool                   `json:"success"`
	Error       string                 `json:"error,omitempty"`
	Result      map[string]interface{} `json:"result"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// DecisionQuery filters Decisions. Zero fields match everything; Limit 0
// means 100.
type DecisionQuery struct {
	Agent string
	Type  domain.DecisionType
	Since time.Time
	Limit int
}

// Store is the sqlite-backed audit trail. It implements coordinator.Observer.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

var _ coordinator.Observer = (*Store)(nil)

// NewStore wraps a migrated audit database.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "audit").Logger(),
	}
}

// OnDecision persists a logged decision. Failures are logged, not returned.
func (s *Store) OnDecision(entry coordinator.DecisionEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.SaveDecision(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("agent", entry.Agent).Msg("Failed to persist decision")
	}
}

// OnMessage persists a routed message. Failures are logged, not returned.
func (s *Store) OnMessage(msg domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.SaveMessage(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to persist message")
	}
}

// SaveDecision inserts one decision log entry.
func (s *Store) SaveDecision(ctx context.Context, entry coordinator.DecisionEntry) error {
	d := entry.Decision
	if d == nil {
		return fmt.Errorf("nil decision from %s", entry.Agent)
	}

	rec, err := encode(d.Recommendation)
	if err != nil {
		return fmt.Errorf("failed to encode recommendation: %w", err)
	}
	meta, err := encode(d.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	kind := ""
	if d.Recommendation != nil {
		kind = string(d.Recommendation.Kind())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO decisions
			(id, agent, decision_type, kind, confidence, reasoning, recommendation, metadata, decided_at, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, entry.Agent, string(d.Type), kind, d.Confidence, d.Reasoning, rec, meta,
		d.Timestamp.UnixMilli(), entry.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// SaveMessage inserts one routed message.
func (s *Store) SaveMessage(ctx context.Context, msg domain.Message) error {
	payload, err := encode(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages
			(id, sender, recipient, message_type, priority, correlation_id, payload, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Recipient, msg.Type, int(msg.Priority), msg.CorrelationID, payload,
		msg.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// RecordWorkflow stores a finished workflow run.
func (s *Store) RecordWorkflow(ctx context.Context, res coordinator.WorkflowResult) error {
	blob, err := encode(res)
	if err != nil {
		return fmt.Errorf("failed to encode workflow result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO workflow_runs
			(id, workflow, success, error, result, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Workflow, res.Success, res.Error, blob,
		res.StartedAt.UnixMilli(), res.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow run: %w", err)
	}
	return nil
}

// Decisions returns matching decisions, newest first.
func (s *Store) Decisions(ctx context.Context, q DecisionQuery) ([]DecisionRecord, error) {
	var where []string
	var args []interface{}
	if q.Agent != "" {
		where = append(where, "agent = ?")
		args = append(args, q.Agent)
	}
	if q.Type != "" {
		where = append(where, "decision_type = ?")
		args = append(args, string(q.Type))
	}
	if !q.Since.IsZero() {
		where = append(where, "decided_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}

	query := `SELECT id, agent, decision_type, kind, confidence, reasoning, recommendation, metadata, decided_at, logged_at
		FROM decisions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY decided_at DESC, rowid DESC LIMIT ?"
	args = append(args, limitOrDefault(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var decisionType string
		var rec, meta []byte
		var decidedAt, loggedAt int64
		if err := rows.Scan(&r.ID, &r.Agent, &decisionType, &r.Kind, &r.Confidence, &r.Reasoning,
			&rec, &meta, &decidedAt, &loggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		r.DecisionType = domain.DecisionType(decisionType)
		if r.Recommendation, err = decodeMap(rec); err != nil {
			return nil, fmt.Errorf("failed to decode recommendation %s: %w", r.ID, err)
		}
		if r.Metadata, err = decodeMap(meta); err != nil {
			return nil, fmt.Errorf("failed to decode metadata %s: %w", r.ID, err)
		}
		r.DecidedAt = time.UnixMilli(decidedAt).UTC()
		r.LoggedAt = time.UnixMilli(loggedAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Messages returns the most recent messages, newest first. A non-empty
// correlation ID restricts the result to one exchange.
func (s *Store) Messages(ctx context.Context, correlationID string, limit int) ([]MessageRecord, error) {
	query := `SELECT id, sender, recipient, message_type, priority, correlation_id, payload, sent_at FROM messages`
	var args []interface{}
	if correlationID != "" {
		query += " WHERE correlation_id = ?"
		args = append(args, correlationID)
	}
	query += " ORDER BY sent_at DESC, rowid DESC LIMIT ?"
	args = append(args, limitOrDefault(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var r MessageRecord
		var priority int
		var payload []byte
		var sentAt int64
		if err := rows.Scan(&r.ID, &r.Sender, &r.Recipient, &r.Type, &priority, &r.CorrelationID, &payload, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		r.Priority = domain.Priority(priority)
		if r.Payload, err = decodeMap(payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload %s: %w", r.ID, err)
		}
		r.SentAt = time.UnixMilli(sentAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// WorkflowRuns returns the most recent workflow runs, newest first.
func (s *Store) WorkflowRuns(ctx context.Context, limit int) ([]WorkflowRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow, success, error, result, started_at, completed_at
		FROM workflow_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow runs: %w", err)
	}
	defer rows.Close()

	var out []WorkflowRecord
	for rows.Next() {
		var r WorkflowRecord
		var result []byte
		var startedAt, completedAt int64
		if err := rows.Scan(&r.ID, &r.Workflow, &r.Success, &r.Error, &result, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow run: %w", err)
		}
		if r.Result, err = decodeMap(result); err != nil {
			return nil, fmt.Errorf("failed to decode workflow result %s: %w", r.ID, err)
		}
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		r.CompletedAt = time.UnixMilli(completedAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// VerdictCounts tallies risk verdicts by decision type since a time.
func (s *Store) VerdictCounts(ctx context.Context, since time.Time) (map[domain.DecisionType]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT decision_type, COUNT(*) FROM decisions
		WHERE decision_type IN (?, ?) AND decided_at >= ?
		GROUP BY decision_type`,
		string(domain.DecisionApprove), string(domain.DecisionVeto), since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to count verdicts: %w", err)
	}
	defer rows.Close()

	out := map[domain.DecisionType]int{}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan verdict count: %w", err)
		}
		out[domain.DecisionType(t)] = n
	}
	return out, rows.Err()
}

// Prune deletes rows older than the cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()
	var total int64
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM decisions WHERE decided_at < ?",
			"DELETE FROM messages WHERE sent_at < ?",
			"DELETE FROM workflow_runs WHERE started_at < ?",
		} {
			res, err := tx.ExecContext(ctx, stmt, cutoff)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit trail: %w", err)
	}
	if total > 0 {
		s.log.Info().Int64("rows", total).Time("before", before).Msg("Pruned audit trail")
	}
	return total, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
