// Package store is the SQL persistence layer for customers, rules, alarms
// and detected relationships. It speaks database/sql with a driver factory
// so the same queries run on postgres and mysql deployments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"racc/pkg/models"
)

// Config selects and configures the backing database.
type Config struct {
	Driver   string // postgres|mysql
	DSN      string
	MaxConns int
}

// Store wraps one SQL connection pool.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "postgres", "mysql":
	case "":
		return nil, fmt.Errorf("database driver is empty")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driver, err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for postgres. Queries are written
// mysql-style and rebound on the way out.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Customers lists all customers ordered by name.
func (s *Store) Customers(ctx context.Context) ([]models.Customer, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description, contact_email, contact_phone FROM customers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var out []models.Customer
	for rows.Next() {
		var c models.Customer
		var desc, email, phone sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &desc, &email, &phone); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.Description = desc.String
		c.ContactEmail = email.String
		c.ContactPhone = phone.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Customer fetches one customer by ID.
func (s *Store) Customer(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	var desc, email, phone sql.NullString
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, name, description, contact_email, contact_phone FROM customers WHERE id = ?"), id).
		Scan(&c.ID, &c.Name, &desc, &email, &phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query customer %d: %w", id, err)
	}
	c.Description = desc.String
	c.ContactEmail = email.String
	c.ContactPhone = phone.String
	return &c, nil
}

// RulesByCustomer returns every rule owned by one customer, ordered by the
// vendor rule ID for stable output.
func (s *Store) RulesByCustomer(ctx context.Context, customerID int64) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT id, customer_id, rule_id, name, description, severity, sig_id, rule_type, revision, origin, action, normid, xml_content, windows_event_ids FROM rules WHERE customer_id = ? ORDER BY rule_id"), customerID)
	if err != nil {
		return nil, fmt.Errorf("query rules for customer %d: %w", customerID, err)
	}
	defer rows.Close()

	var out []models.Rule
	for rows.Next() {
		var r models.Rule
		var desc, sigID, normID, xmlContent, eventIDs sql.NullString
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.RuleID, &r.Name, &desc, &r.Severity, &sigID,
			&r.RuleType, &r.Revision, &r.Origin, &r.Action, &normID, &xmlContent, &eventIDs); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Description = desc.String
		r.SigID = sigID.String
		r.NormID = normID.String
		r.XMLContent = xmlContent.String
		r.WindowsEventIDs = decodeEventIDs(eventIDs.String)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRules writes a batch of rules in one transaction.
func (s *Store) InsertRules(ctx context.Context, rules []models.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rule insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		"INSERT INTO rules (customer_id, rule_id, name, description, severity, sig_id, rule_type, revision, origin, action, normid, xml_content, windows_event_ids) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("prepare rule insert: %w", err)
	}
	defer stmt.Close()

	for i := range rules {
		r := &rules[i]
		if _, err := stmt.ExecContext(ctx, r.CustomerID, r.RuleID, r.Name, r.Description, r.Severity,
			r.SigID, r.RuleType, r.Revision, r.Origin, r.Action, r.NormID, r.XMLContent,
			encodeEventIDs(r.WindowsEventIDs)); err != nil {
			return fmt.Errorf("insert rule %s: %w", r.RuleID, err)
		}
	}
	return tx.Commit()
}

// AlarmsByCustomer returns every alarm owned by one customer.
func (s *Store) AlarmsByCustomer(ctx context.Context, customerID int64) ([]models.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT id, customer_id, name, min_version, severity, match_field, match_value, condition_type, assignee_id, esc_assignee_id, note, xml_content, windows_event_ids FROM alarms WHERE customer_id = ? ORDER BY name"), customerID)
	if err != nil {
		return nil, fmt.Errorf("query alarms for customer %d: %w", customerID, err)
	}
	defer rows.Close()

	var out []models.Alarm
	for rows.Next() {
		var a models.Alarm
		var minVersion, matchField, matchValue, note, xmlContent, eventIDs sql.NullString
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.Name, &minVersion, &a.Severity, &matchField,
			&matchValue, &a.ConditionType, &a.AssigneeID, &a.EscAssigneeID, &note, &xmlContent, &eventIDs); err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		a.MinVersion = minVersion.String
		a.MatchField = matchField.String
		a.MatchValue = matchValue.String
		a.Note = note.String
		a.XMLContent = xmlContent.String
		a.WindowsEventIDs = decodeEventIDs(eventIDs.String)
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAlarms writes a batch of alarms. The (customer_id, match_field,
// match_value) uniqueness backing synthesizer dedup is enforced by the
// schema; conflicting rows are skipped, not errors.
func (s *Store) InsertAlarms(ctx context.Context, alarms []models.Alarm) error {
	if len(alarms) == 0 {
		return nil
	}
	query := "INSERT INTO alarms (customer_id, name, min_version, severity, match_field, match_value, condition_type, assignee_id, esc_assignee_id, note, xml_content, windows_event_ids) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	if s.driver == "postgres" {
		query += " ON CONFLICT (customer_id, match_field, match_value) DO NOTHING"
	} else {
		query = strings.Replace(query, "INSERT INTO", "INSERT IGNORE INTO", 1)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alarm insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(query))
	if err != nil {
		return fmt.Errorf("prepare alarm insert: %w", err)
	}
	defer stmt.Close()

	for i := range alarms {
		a := &alarms[i]
		if _, err := stmt.ExecContext(ctx, a.CustomerID, a.Name, a.MinVersion, a.Severity,
			a.MatchField, a.MatchValue, a.ConditionType, a.AssigneeID, a.EscAssigneeID,
			a.Note, a.XMLContent, encodeEventIDs(a.WindowsEventIDs)); err != nil {
			return fmt.Errorf("insert alarm %s: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

// ReplaceRelationships swaps the derived relationship rows for one customer.
// Relationships are recomputed evidence, never merged in place.
func (s *Store) ReplaceRelationships(ctx context.Context, customerID int64, rels []models.Relationship) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin relationship replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM relationships WHERE customer_id = ?"), customerID); err != nil {
		return fmt.Errorf("clear relationships for customer %d: %w", customerID, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		"INSERT INTO relationships (customer_id, rule_id, alarm_id, sig_id, match_value, matched_fields) VALUES (?, ?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("prepare relationship insert: %w", err)
	}
	defer stmt.Close()

	for i := range rels {
		rel := &rels[i]
		if _, err := stmt.ExecContext(ctx, customerID, rel.RuleID, rel.AlarmID, rel.SigID,
			rel.MatchValue, strings.Join(rel.MatchedFields, ",")); err != nil {
			return fmt.Errorf("insert relationship %d/%d: %w", rel.RuleID, rel.AlarmID, err)
		}
	}
	return tx.Commit()
}

func encodeEventIDs(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func decodeEventIDs(s string) []int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
