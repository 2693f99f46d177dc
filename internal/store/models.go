// Package store is the SQLite persistence layer for the gateway's
// read-mostly routing tables (Channel, ChannelApiKey, ModelMapping, Token)
// and its write-only RequestLog table. Grounded on original_source/src-tauri/
// src/db/{models.rs,mod.rs} for the schema shape, adapted to the teacher's
// idiom of a thin driver-backed store type with explicit query methods.
package store

import "time"

// Channel is one configured upstream endpoint.
type Channel struct {
	ID          string
	Name        string
	Provider    string // one of the codec.Format slugs
	BaseURL     string
	Priority    int // lower = higher priority
	Weight      int // >= 1
	Enabled     bool
	KeyRotation bool
}

// ChannelAPIKey is one credential belonging to a Channel.
type ChannelAPIKey struct {
	ID        string
	ChannelID string
	KeyValue  string
	Enabled   bool
}

// ModelMapping binds a client-facing model name to a channel's upstream
// model name.
type ModelMapping struct {
	ID         string
	PublicName string
	ChannelID  string
	ActualName string
	Modality   string
}

// Token is a client credential accepted by the gateway's own auth layer.
type Token struct {
	ID            string
	KeyValue      string
	Enabled       bool
	ExpiresAt     *time.Time
	QuotaLimit    *int64
	QuotaUsed     int64
	AllowedModels []string // nil means unrestricted
}

// RequestLog is one row describing a completed (or failed) proxied request.
type RequestLog struct {
	ID               string
	TokenID          string
	ChannelID        string
	Model            string
	Modality         string
	InputFormat      string
	OutputFormat     string
	Status           int // 0 means no HTTP status was obtained (transport error)
	LatencyMS        int64
	PromptTokens     int
	CompletionTokens int
	RequestBody      string
	ResponseBody      *string // nil while a streaming request is still in flight
	CreatedAt        time.Time
}

// RoutingCandidate is the join-result row the balancer queries: a channel
// paired with the model mapping (real or passthrough-synthesized) that
// routes to it.
type RoutingCandidate struct {
	Channel Channel
	Mapping ModelMapping
}
