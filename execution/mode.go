package execution

import (
	"fmt"
	"net/url"

	"github.com/status-im/verif-proxy/errors"
)

// ModeKind tells how execution data is trusted.
type ModeKind int

const (
	// Full accepts whatever the primary endpoint answers.
	Full ModeKind = iota
	// Verifiable checks every answer against the proof endpoint.
	Verifiable
)

func (k ModeKind) String() string {
	switch k {
	case Full:
		return "full"
	case Verifiable:
		return "verifiable"
	}
	return fmt.Sprintf("ModeKind(%d)", int(k))
}

// Mode records where execution data comes from and whether it must be proof checked.
// It is immutable after construction and safe for concurrent use.
type Mode struct {
	kind      ModeKind
	endpoints []string
	proof     *url.URL
}

// NewMode builds the mode from configuration. A nil endpoints slice means no
// endpoints were given: the proof endpoint is then ignored and the result is
// Full with an empty list. Use of such a mode fails on PrimaryEndpoint.
func NewMode(endpoints []string, proof *url.URL) *Mode {
	if endpoints == nil {
		return &Mode{kind: Full, endpoints: []string{}}
	}

	copied := make([]string, len(endpoints))
	copy(copied, endpoints)

	if proof == nil {
		return &Mode{kind: Full, endpoints: copied}
	}

	p := *proof
	return &Mode{kind: Verifiable, endpoints: copied, proof: &p}
}

func (m *Mode) Kind() ModeKind {
	return m.kind
}

// PrimaryEndpoint returns the first configured execution endpoint.
func (m *Mode) PrimaryEndpoint() (string, error) {
	if len(m.endpoints) == 0 {
		return "", errors.Configuration("no execution RPCs provided")
	}
	return m.endpoints[0], nil
}

// ProofEndpoint is non-nil only in verifiable mode.
func (m *Mode) ProofEndpoint() *url.URL {
	if m.kind != Verifiable {
		return nil
	}
	p := *m.proof
	return &p
}

// Endpoints returns a copy of all execution endpoints in configured order.
func (m *Mode) Endpoints() []string {
	endpoints := make([]string, len(m.endpoints))
	copy(endpoints, m.endpoints)
	return endpoints
}

func (m *Mode) IsVerifiable() bool {
	return m.kind == Verifiable
}

func (m *Mode) String() string {
	if m.kind == Verifiable {
		return fmt.Sprintf("verifiable(endpoints=%d, proof=%s)", len(m.endpoints), m.proof.Redacted())
	}
	return fmt.Sprintf("full(endpoints=%d)", len(m.endpoints))
}
