package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertAgent inserts or updates a worker identity.
func (s *Store) UpsertAgent(ctx context.Context, a *Agent) error {
	active := 0
	if a.Active {
		active = 1
	}
	if _, err := s.execWithRetry(
		ensureContext(ctx),
		`INSERT INTO agents (id, name, active) VALUES (?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active`,
		a.ID, a.Name, active,
	); err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// AgentByID fetches an agent. Returns nil when absent.
func (s *Store) AgentByID(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id, name, active FROM agents WHERE id = ?`,
		id,
	)
	var (
		agent  Agent
		active int
	)
	err := row.Scan(&agent.ID, &agent.Name, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query agent: %w", err)
	}
	agent.Active = active != 0
	return &agent, nil
}

// SavePreference inserts or replaces an agent's routing configuration.
func (s *Store) SavePreference(ctx context.Context, p *Preference) error {
	primary, err := json.Marshal(p.PrimarySegments)
	if err != nil {
		return fmt.Errorf("marshal primary segments: %w", err)
	}
	fallback, err := json.Marshal(p.FallbackSegments)
	if err != nil {
		return fmt.Errorf("marshal fallback segments: %w", err)
	}
	pickup, err := json.Marshal(p.PickupStatuses)
	if err != nil {
		return fmt.Errorf("marshal pickup statuses: %w", err)
	}
	active, err := json.Marshal(p.ActiveStatuses)
	if err != nil {
		return fmt.Errorf("marshal active statuses: %w", err)
	}

	if _, err := s.execWithRetry(
		ensureContext(ctx),
		`INSERT INTO agent_preferences (
            agent_id, primary_segments, fallback_segments, pickup_statuses,
            active_statuses, accept_status, return_status, max_in_progress_minutes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(agent_id) DO UPDATE SET
            primary_segments = excluded.primary_segments,
            fallback_segments = excluded.fallback_segments,
            pickup_statuses = excluded.pickup_statuses,
            active_statuses = excluded.active_statuses,
            accept_status = excluded.accept_status,
            return_status = excluded.return_status,
            max_in_progress_minutes = excluded.max_in_progress_minutes`,
		p.AgentID,
		string(primary),
		string(fallback),
		string(pickup),
		string(active),
		p.AcceptStatus,
		p.ReturnStatus,
		p.MaxInProgressMinutes,
	); err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	return nil
}

// PreferenceFor fetches an agent's routing configuration. Returns nil when absent.
func (s *Store) PreferenceFor(ctx context.Context, agentID string) (*Preference, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT agent_id, primary_segments, fallback_segments, pickup_statuses,
                active_statuses, accept_status, return_status, max_in_progress_minutes
         FROM agent_preferences WHERE agent_id = ?`,
		agentID,
	)

	var (
		pref        Preference
		primaryRaw  string
		fallbackRaw string
		pickupRaw   string
		activeRaw   string
		acceptStr   string
		returnStr   string
	)
	err := row.Scan(
		&pref.AgentID,
		&primaryRaw,
		&fallbackRaw,
		&pickupRaw,
		&activeRaw,
		&acceptStr,
		&returnStr,
		&pref.MaxInProgressMinutes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preference: %w", err)
	}

	if err := json.Unmarshal([]byte(primaryRaw), &pref.PrimarySegments); err != nil {
		return nil, fmt.Errorf("decode primary segments: %w", err)
	}
	if err := json.Unmarshal([]byte(fallbackRaw), &pref.FallbackSegments); err != nil {
		return nil, fmt.Errorf("decode fallback segments: %w", err)
	}
	if err := json.Unmarshal([]byte(pickupRaw), &pref.PickupStatuses); err != nil {
		return nil, fmt.Errorf("decode pickup statuses: %w", err)
	}
	if err := json.Unmarshal([]byte(activeRaw), &pref.ActiveStatuses); err != nil {
		return nil, fmt.Errorf("decode active statuses: %w", err)
	}
	pref.AcceptStatus = Status(acceptStr)
	pref.ReturnStatus = Status(returnStr)
	return &pref, nil
}
