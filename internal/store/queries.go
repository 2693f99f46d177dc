package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/llm-gateway/gateway/internal/apperror"
)

// RoutingCandidatesForModel returns every enabled channel mapped to
// publicName, joined to its mapping row, ordered by ascending priority so
// the balancer can partition contiguous equal-priority runs directly.
// Grounded on spec.md §4.3 step 1's join query.
func (s *Store) RoutingCandidatesForModel(publicName string) ([]RoutingCandidate, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.name, c.provider, c.base_url, c.priority, c.weight, c.enabled, c.key_rotation,
		       m.id, m.public_name, m.channel_id, m.actual_name, m.modality
		FROM model_mappings m
		JOIN channels c ON c.id = m.channel_id
		WHERE m.public_name = ? AND c.enabled = 1
		ORDER BY c.priority ASC
	`, publicName)
	if err != nil {
		return nil, apperror.Database(err)
	}
	defer rows.Close()

	var out []RoutingCandidate
	for rows.Next() {
		var rc RoutingCandidate
		if err := rows.Scan(
			&rc.Channel.ID, &rc.Channel.Name, &rc.Channel.Provider, &rc.Channel.BaseURL,
			&rc.Channel.Priority, &rc.Channel.Weight, &rc.Channel.Enabled, &rc.Channel.KeyRotation,
			&rc.Mapping.ID, &rc.Mapping.PublicName, &rc.Mapping.ChannelID, &rc.Mapping.ActualName, &rc.Mapping.Modality,
		); err != nil {
			return nil, apperror.Database(err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// EnabledChannelsPassthrough returns every enabled channel with a synthetic
// identity-mapping for model, used when no explicit mapping exists (spec.md
// §4.3 step 2).
func (s *Store) EnabledChannelsPassthrough(model string) ([]RoutingCandidate, error) {
	rows, err := s.db.Query(`
		SELECT id, name, provider, base_url, priority, weight, enabled, key_rotation
		FROM channels WHERE enabled = 1 ORDER BY priority ASC
	`)
	if err != nil {
		return nil, apperror.Database(err)
	}
	defer rows.Close()

	var out []RoutingCandidate
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Provider, &ch.BaseURL, &ch.Priority, &ch.Weight, &ch.Enabled, &ch.KeyRotation); err != nil {
			return nil, apperror.Database(err)
		}
		out = append(out, RoutingCandidate{
			Channel: ch,
			Mapping: ModelMapping{PublicName: model, ChannelID: ch.ID, ActualName: model, Modality: "chat"},
		})
	}
	return out, rows.Err()
}

// EnabledAPIKeysForChannel returns channelID's enabled keys in insertion
// order, used both for single-key fetch and round-robin rotation.
func (s *Store) EnabledAPIKeysForChannel(channelID string) ([]ChannelAPIKey, error) {
	rows, err := s.db.Query(`
		SELECT id, channel_id, key_value, enabled FROM channel_api_keys
		WHERE channel_id = ? AND enabled = 1 ORDER BY rowid ASC
	`, channelID)
	if err != nil {
		return nil, apperror.Database(err)
	}
	defer rows.Close()

	var out []ChannelAPIKey
	for rows.Next() {
		var k ChannelAPIKey
		if err := rows.Scan(&k.ID, &k.ChannelID, &k.KeyValue, &k.Enabled); err != nil {
			return nil, apperror.Database(err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// TokenByKeyValue looks up an auth token by its raw credential string.
// Returns (nil, nil) when no matching enabled token exists.
func (s *Store) TokenByKeyValue(keyValue string) (*Token, error) {
	row := s.db.QueryRow(`
		SELECT id, key_value, enabled, expires_at, quota_limit, quota_used, allowed_models
		FROM tokens WHERE key_value = ? AND enabled = 1
	`, keyValue)

	var t Token
	var expiresAt sql.NullString
	var quotaLimit sql.NullInt64
	var allowedModels sql.NullString
	if err := row.Scan(&t.ID, &t.KeyValue, &t.Enabled, &expiresAt, &quotaLimit, &t.QuotaUsed, &allowedModels); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Database(err)
	}
	if expiresAt.Valid {
		ts, err := time.Parse(time.RFC3339, expiresAt.String)
		if err == nil {
			t.ExpiresAt = &ts
		}
	}
	if quotaLimit.Valid {
		t.QuotaLimit = &quotaLimit.Int64
	}
	if allowedModels.Valid && allowedModels.String != "" {
		_ = json.Unmarshal([]byte(allowedModels.String), &t.AllowedModels)
	}
	return &t, nil
}

// IncrementQuotaUsed atomically adds delta to token.quota_used.
func (s *Store) IncrementQuotaUsed(tokenID string, delta int64) error {
	_, err := s.db.Exec(`UPDATE tokens SET quota_used = quota_used + ? WHERE id = ?`, delta, tokenID)
	if err != nil {
		return apperror.Database(err)
	}
	return nil
}

// InsertRequestLog inserts a completed (or still-streaming) request log row.
func (s *Store) InsertRequestLog(l *RequestLog) error {
	_, err := s.db.Exec(`
		INSERT INTO request_logs (id, token_id, channel_id, model, modality, input_format, output_format,
			status, latency_ms, prompt_tokens, completion_tokens, request_body, response_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.TokenID, l.ChannelID, l.Model, l.Modality, l.InputFormat, l.OutputFormat,
		l.Status, l.LatencyMS, l.PromptTokens, l.CompletionTokens, l.RequestBody, l.ResponseBody,
		l.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return apperror.Database(err)
	}
	return nil
}

// UpdateRequestLogResponseBody fills in the response body of a previously
// streamed log row once the SSE transducer finishes (spec.md §4.7).
func (s *Store) UpdateRequestLogResponseBody(id string, responseBody string, status int, latencyMS int64, promptTokens, completionTokens int) error {
	_, err := s.db.Exec(`
		UPDATE request_logs SET response_body = ?, status = ?, latency_ms = ?, prompt_tokens = ?, completion_tokens = ?
		WHERE id = ?
	`, responseBody, status, latencyMS, promptTokens, completionTokens, id)
	if err != nil {
		return apperror.Database(err)
	}
	return nil
}

// AppConfigValue reads a single app_config row, returning ("", false) if
// absent.
func (s *Store) AppConfigValue(key string) (string, bool, error) {
	row := s.db.QueryRow(`SELECT value FROM app_config WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, apperror.Database(err)
	}
	return v, true, nil
}

// SetAppConfigValue upserts a single app_config row.
func (s *Store) SetAppConfigValue(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO app_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return apperror.Database(err)
	}
	return nil
}

// ModelMappingEntry is one row of ListDistinctModelMappings: a public model
// name paired with the provider slug of one enabled channel that serves it.
type ModelMappingEntry struct {
	PublicName string
	Provider   string
}

// ListDistinctModelMappings returns one (public_name, provider) pair per
// public model name mapped by at least one enabled channel, for the
// /v1/models listing's owned_by field. When several enabled channels serve
// the same public name under different providers, the lowest channel
// priority wins, matching the balancer's own channel preference order; rows
// come back ordered by (public_name, priority) and are collapsed in Go
// rather than via a HAVING clause, since SQLite's GROUP BY does not let a
// non-aggregated column be compared against an aggregate on itself.
func (s *Store) ListDistinctModelMappings() ([]ModelMappingEntry, error) {
	rows, err := s.db.Query(`
		SELECT m.public_name, c.provider
		FROM model_mappings m
		JOIN channels c ON c.id = m.channel_id
		WHERE c.enabled = 1
		ORDER BY m.public_name ASC, c.priority ASC
	`)
	if err != nil {
		return nil, apperror.Database(err)
	}
	defer rows.Close()

	var out []ModelMappingEntry
	seen := map[string]bool{}
	for rows.Next() {
		var e ModelMappingEntry
		if err := rows.Scan(&e.PublicName, &e.Provider); err != nil {
			return nil, apperror.Database(err)
		}
		e.PublicName = strings.TrimSpace(e.PublicName)
		if seen[e.PublicName] {
			continue
		}
		seen[e.PublicName] = true
		out = append(out, e)
	}
	return out, rows.Err()
}
