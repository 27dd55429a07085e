package repo

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/miradorstack/secops-investigator/internal/models"
)

// SyntheticSource generates deterministic telemetry for local development and tests.
// Events reuse the IPs and usernames from the query filters so correlations have
// something to find.
type SyntheticSource struct {
	seed    uint64
	failing map[models.AgentType]struct{}
	latency time.Duration
	now     func() time.Time
}

// SyntheticOption customises a SyntheticSource.
type SyntheticOption func(*SyntheticSource)

// WithFailingAgents makes the listed agents reject every query.
func WithFailingAgents(agents ...models.AgentType) SyntheticOption {
	return func(s *SyntheticSource) {
		for _, agent := range agents {
			s.failing[agent] = struct{}{}
		}
	}
}

// WithLatency delays every response, honouring context cancellation.
func WithLatency(d time.Duration) SyntheticOption {
	return func(s *SyntheticSource) {
		s.latency = d
	}
}

// NewSyntheticSource constructs a generator. The same seed and query always yield the same events.
func NewSyntheticSource(seed int64, opts ...SyntheticOption) *SyntheticSource {
	s := &SyntheticSource{
		seed:    uint64(seed),
		failing: make(map[models.AgentType]struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query implements engine.TelemetrySource.
func (s *SyntheticSource) Query(ctx context.Context, agent models.AgentType, q models.TelemetryQuery) (models.TelemetryResult, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.TelemetryResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if _, ok := s.failing[agent]; ok {
		return models.TelemetryResult{}, fmt.Errorf("%s: agent unavailable", agent)
	}

	rng := rand.New(rand.NewPCG(s.seed, agentSalt(agent)))
	gen := generator{rng: rng, filters: q.Filters}

	end := q.TimeRange.End
	if end.IsZero() {
		end = s.now()
	}
	count := 6 + rng.IntN(10)
	if q.Limit > 0 && count > q.Limit {
		count = q.Limit
	}

	events := make([]models.Event, 0, count)
	for i := 0; i < count; i++ {
		ts := end.Add(-time.Duration(rng.IntN(900)) * time.Second)
		if !q.TimeRange.Start.IsZero() && ts.Before(q.TimeRange.Start) {
			ts = q.TimeRange.Start
		}
		gen.index = i
		fields := gen.fields(agent)
		fields["timestamp"] = models.String(ts.UTC().Format(time.RFC3339))
		events = append(events, models.Event{Timestamp: ts, Fields: project(fields, q.Fields)})
	}

	return models.TelemetryResult{
		Data: events,
		Metadata: models.ResultMetadata{
			Count:       len(events),
			QueryTimeMs: float64(20 + rng.IntN(180)),
		},
	}, nil
}

type generator struct {
	rng     *rand.Rand
	filters []models.QueryFilter
	index   int
}

func (g generator) pick(values ...string) string {
	return values[g.rng.IntN(len(values))]
}

func (g generator) filterValue(fields ...string) (string, bool) {
	for _, filter := range g.filters {
		for _, field := range fields {
			if filter.Field == field {
				return filter.Value, true
			}
		}
	}
	return "", false
}

// ip returns the filtered address on every other event, otherwise one from prefix.
func (g generator) ip(prefix string, filterFields ...string) string {
	if v, ok := g.filterValue(filterFields...); ok && g.index%2 == 0 {
		return v
	}
	return fmt.Sprintf("%s%d", prefix, 2+g.rng.IntN(40))
}

func (g generator) user() string {
	if v, ok := g.filterValue("username", "user_id"); ok {
		return v
	}
	return g.pick("jdoe", "asmith", "mlee", "svc-backup")
}

func (g generator) fields(agent models.AgentType) map[string]models.FieldValue {
	str := models.String
	num := func(n int) models.FieldValue { return models.Number(float64(n)) }

	switch agent {
	case models.AgentSplunk:
		return map[string]models.FieldValue{
			"host":        str(fmt.Sprintf("srv-%02d", 1+g.rng.IntN(6))),
			"source":      str(g.pick("/var/log/auth.log", "/var/log/vpn.log", "/var/log/app.log")),
			"sourcetype":  str(g.pick("syslog", "access_combined", "cisco:asa")),
			"message":     str(g.pick("authentication failure", "session established", "upstream timeout", "request served")),
			"severity":    str(g.pick("info", "info", "warning", "high", "critical")),
			"status_code": num([]int{200, 200, 200, 401, 403, 500, 503}[g.rng.IntN(7)]),
		}
	case models.AgentNetflow:
		return map[string]models.FieldValue{
			"src_ip":   str(g.ip("10.1.1.", "src_ip", "client_ip")),
			"dst_ip":   str(g.ip("10.1.2.", "dst_ip")),
			"src_port": num(1024 + g.rng.IntN(60000)),
			"dst_port": num([]int{443, 443, 22, 53, 3389}[g.rng.IntN(5)]),
			"protocol": str(g.pick("tcp", "tcp", "udp")),
			"bytes":    num(200 + g.rng.IntN(90000)),
			"packets":  num(1 + g.rng.IntN(400)),
		}
	case models.AgentISE:
		return map[string]models.FieldValue{
			"username":       str(g.user()),
			"client_ip":      str(g.ip("10.1.1.", "client_ip", "src_ip")),
			"auth_result":    str(g.pick("SUCCESS", "SUCCESS", "FAILURE")),
			"policy":         str(g.pick("corp-dot1x", "guest-mab", "vpn-posture")),
			"device_mac":     str(fmt.Sprintf("00:1a:2b:3c:%02x:%02x", g.rng.IntN(256), g.index)),
			"failure_reason": str(g.pick("", "", "invalid credentials", "posture non-compliant")),
		}
	case models.AgentSNMP:
		return map[string]models.FieldValue{
			"device":     str(fmt.Sprintf("sw-core-%d", 1+g.rng.IntN(3))),
			"ip_address": str(g.ip("10.1.3.")),
			"interface":  str(fmt.Sprintf("Gi1/0/%d", 1+g.rng.IntN(48))),
			"oid":        str(g.pick("1.3.6.1.2.1.2.2.1.8", "1.3.6.1.2.1.2.2.1.14")),
			"value":      num(g.rng.IntN(100)),
			"status":     str(g.pick("up", "up", "up", "down")),
		}
	case models.AgentSecureClient:
		return map[string]models.FieldValue{
			"username":          str(g.user()),
			"client_ip":         str(g.ip("10.1.1.", "client_ip", "src_ip")),
			"connection_status": str(g.pick("CONNECTED", "CONNECTED", "DISCONNECTED")),
			"vpn_gateway":       str(g.pick("vpn-east.corp.com", "vpn-west.corp.com")),
			"duration":          num(g.rng.IntN(7200)),
			"error_code":        str(g.pick("", "", "E_TUNNEL_TIMEOUT", "E_AUTH_REJECTED")),
		}
	case models.AgentFirewall:
		return map[string]models.FieldValue{
			"src_ip":   str(g.ip("10.1.1.", "src_ip", "client_ip")),
			"dst_ip":   str(g.ip("10.1.2.", "dst_ip")),
			"dst_port": num([]int{443, 22, 3389, 8443}[g.rng.IntN(4)]),
			"protocol": str(g.pick("tcp", "udp")),
			"action":   str(g.pick("ALLOW", "ALLOW", "DENY")),
			"rule":     str(fmt.Sprintf("acl-%03d", g.rng.IntN(200))),
		}
	case models.AgentTopology:
		return map[string]models.FieldValue{
			"device":      str(fmt.Sprintf("rtr-%d", 1+g.rng.IntN(4))),
			"ip_address":  str(g.ip("10.1.3.")),
			"neighbor":    str(fmt.Sprintf("sw-core-%d", 1+g.rng.IntN(3))),
			"link_status": str(g.pick("up", "up", "degraded")),
			"role":        str(g.pick("core", "distribution", "edge")),
		}
	default:
		return map[string]models.FieldValue{
			"message": str("synthetic event"),
		}
	}
}

func project(fields map[string]models.FieldValue, keep []string) map[string]models.FieldValue {
	if len(keep) == 0 {
		return fields
	}
	out := make(map[string]models.FieldValue, len(keep))
	for _, name := range keep {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

func agentSalt(agent models.AgentType) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(agent))
	return h.Sum64()
}
