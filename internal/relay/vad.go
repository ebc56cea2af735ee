package relay

import (
	"fmt"
	"slices"

	"github.com/hubenschmidt/realtime-relay/internal/upstream"
)

// VAD types accepted from clients. VADNone switches the upstream to manual
// commit mode.
const (
	VADServer   = "server_vad"
	VADSemantic = "semantic_vad"
	VADNone     = "none"
)

var eagernessLevels = []string{"low", "medium", "high", "auto"}

// VADConfig is a client's turn-detection override.
type VADConfig struct {
	Type              string   `json:"type" yaml:"type"`
	Eagerness         string   `json:"eagerness,omitempty" yaml:"eagerness"`
	CreateResponse    *bool    `json:"create_response,omitempty" yaml:"create_response"`
	InterruptResponse *bool    `json:"interrupt_response,omitempty" yaml:"interrupt_response"`
	Threshold         *float64 `json:"threshold,omitempty" yaml:"threshold"`
	PrefixPaddingMs   *int     `json:"prefix_padding_ms,omitempty" yaml:"prefix_padding_ms"`
	SilenceDurationMs *int     `json:"silence_duration_ms,omitempty" yaml:"silence_duration_ms"`
}

// DefaultVAD is server-side VAD that answers and barges in automatically.
func DefaultVAD() VADConfig {
	yes := true
	return VADConfig{Type: VADServer, CreateResponse: &yes, InterruptResponse: &yes}
}

// Validate checks the override and fills an empty type with server_vad.
func (v *VADConfig) Validate() error {
	if v.Type == "" {
		v.Type = VADServer
	}
	switch v.Type {
	case VADServer, VADSemantic, VADNone:
	default:
		return fmt.Errorf("invalid VAD type %q", v.Type)
	}
	if v.Eagerness != "" {
		if v.Type != VADSemantic {
			return fmt.Errorf("eagerness only applies to %s", VADSemantic)
		}
		if !slices.Contains(eagernessLevels, v.Eagerness) {
			return fmt.Errorf("invalid eagerness %q", v.Eagerness)
		}
	}
	if v.Threshold != nil && (*v.Threshold < 0 || *v.Threshold > 1) {
		return fmt.Errorf("threshold must be within [0, 1], got %v", *v.Threshold)
	}
	if v.PrefixPaddingMs != nil && *v.PrefixPaddingMs < 0 {
		return fmt.Errorf("prefix_padding_ms must not be negative")
	}
	if v.SilenceDurationMs != nil && *v.SilenceDurationMs < 0 {
		return fmt.Errorf("silence_duration_ms must not be negative")
	}
	return nil
}

// apply writes the turn-detection part of cfg.
func (v VADConfig) apply(cfg *upstream.SessionConfig) {
	if v.Type == VADNone {
		cfg.TurnDetectionDisabled = true
		return
	}
	td := &upstream.TurnDetection{
		Type:              v.Type,
		Eagerness:         v.Eagerness,
		CreateResponse:    v.CreateResponse,
		InterruptResponse: v.InterruptResponse,
	}
	if v.Threshold != nil {
		td.Threshold = *v.Threshold
	}
	if v.PrefixPaddingMs != nil {
		td.PrefixPaddingMs = *v.PrefixPaddingMs
	}
	if v.SilenceDurationMs != nil {
		td.SilenceDurationMs = *v.SilenceDurationMs
	}
	cfg.TurnDetection = td
}
