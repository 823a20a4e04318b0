package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

const ruleColumns = "id, current_segment, status_code, next_segment, template_codes, note"

// InsertRule records a handoff rule.
func (s *Store) InsertRule(ctx context.Context, r *HandoffRule) error {
	codes, err := json.Marshal(r.TemplateCodes)
	if err != nil {
		return fmt.Errorf("marshal template codes: %w", err)
	}
	var statusArg any
	if r.Status != nil {
		statusArg = *r.Status
	}
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`INSERT INTO handoff_rules (current_segment, status_code, next_segment, template_codes, note)
         VALUES (?, ?, ?, ?, ?)`,
		r.CurrentSegment, statusArg, r.NextSegment, string(codes), r.Note,
	)
	if err != nil {
		return fmt.Errorf("insert handoff rule: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// RulesFor returns rules matching (segment, status) exactly, ordered by id.
func (s *Store) RulesFor(ctx context.Context, segment string, status Status) ([]*HandoffRule, error) {
	return s.ruleQueryAll(
		ctx,
		`SELECT `+ruleColumns+` FROM handoff_rules WHERE current_segment = ? AND status_code = ? ORDER BY id`,
		segment, status,
	)
}

// WildcardRulesFor returns the segment's null-status rules, ordered by id.
func (s *Store) WildcardRulesFor(ctx context.Context, segment string) ([]*HandoffRule, error) {
	return s.ruleQueryAll(
		ctx,
		`SELECT `+ruleColumns+` FROM handoff_rules WHERE current_segment = ? AND status_code IS NULL ORDER BY id`,
		segment,
	)
}

// ListRules returns every handoff rule ordered by segment then id.
func (s *Store) ListRules(ctx context.Context) ([]*HandoffRule, error) {
	return s.ruleQueryAll(ctx, `SELECT `+ruleColumns+` FROM handoff_rules ORDER BY current_segment, id`)
}

func (s *Store) ruleQueryAll(ctx context.Context, query string, args ...any) ([]*HandoffRule, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query handoff rules: %w", err)
	}
	defer rows.Close()

	var rules []*HandoffRule
	for rows.Next() {
		var (
			rule      HandoffRule
			statusRaw *string
			codesRaw  string
		)
		if err := rows.Scan(&rule.ID, &rule.CurrentSegment, &statusRaw, &rule.NextSegment, &codesRaw, &rule.Note); err != nil {
			return nil, err
		}
		if statusRaw != nil {
			status := Status(*statusRaw)
			rule.Status = &status
		}
		if err := json.Unmarshal([]byte(codesRaw), &rule.TemplateCodes); err != nil {
			return nil, fmt.Errorf("decode template codes: %w", err)
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}
