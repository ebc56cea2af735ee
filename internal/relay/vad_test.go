package relay

import (
	"testing"

	"github.com/hubenschmidt/realtime-relay/internal/upstream"
)

func TestVADConfigValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	cases := []struct {
		name string
		cfg  VADConfig
		ok   bool
	}{
		{"empty defaults to server", VADConfig{}, true},
		{"server", VADConfig{Type: VADServer, Threshold: f(0.6), SilenceDurationMs: intPtr(500)}, true},
		{"semantic eager", VADConfig{Type: VADSemantic, Eagerness: "high"}, true},
		{"none", VADConfig{Type: VADNone}, true},
		{"unknown type", VADConfig{Type: "client_vad"}, false},
		{"bad eagerness", VADConfig{Type: VADSemantic, Eagerness: "frantic"}, false},
		{"eagerness on server", VADConfig{Type: VADServer, Eagerness: "low"}, false},
		{"threshold range", VADConfig{Type: VADServer, Threshold: f(1.5)}, false},
		{"negative padding", VADConfig{Type: VADServer, PrefixPaddingMs: intPtr(-1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestVADConfigApply(t *testing.T) {
	var cfg upstream.SessionConfig
	VADConfig{Type: VADNone}.apply(&cfg)
	if !cfg.TurnDetectionDisabled || cfg.TurnDetection != nil {
		t.Fatalf("none should disable turn detection: %+v", cfg)
	}

	cfg = upstream.SessionConfig{}
	no := false
	VADConfig{Type: VADSemantic, Eagerness: "low", CreateResponse: &no}.apply(&cfg)
	td := cfg.TurnDetection
	if td == nil || td.Type != VADSemantic || td.Eagerness != "low" || *td.CreateResponse {
		t.Fatalf("turn detection = %+v", td)
	}

	cfg = upstream.SessionConfig{}
	DefaultVAD().apply(&cfg)
	if cfg.TurnDetection.Type != VADServer || !*cfg.TurnDetection.InterruptResponse {
		t.Fatalf("default = %+v", cfg.TurnDetection)
	}
}
