// Package automation maps discovered patterns onto Home Assistant
// automation documents. Only pattern kinds with an unambiguous trigger
// produce a document; context correlations stay suggestions.
package automation

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
)

// defaultDenyDomains are never automated regardless of confidence. Locks and
// alarm panels acting on a mined correlation is a safety hazard, not a
// convenience.
var defaultDenyDomains = []string{"lock", "alarm_control_panel", "camera"}

// Trigger is one entry of an automation's trigger list.
type Trigger struct {
	Platform string `yaml:"platform"`
	At       string `yaml:"at,omitempty"`
	EntityID string `yaml:"entity_id,omitempty"`
	To       string `yaml:"to,omitempty"`
}

// Condition is one entry of an automation's condition list.
type Condition struct {
	Condition string   `yaml:"condition"`
	Weekday   []string `yaml:"weekday,omitempty"`
}

// Target addresses the entity an action operates on.
type Target struct {
	EntityID string `yaml:"entity_id"`
}

// Action is one entry of an automation's action list.
type Action struct {
	Service string `yaml:"service"`
	Target  Target `yaml:"target"`
}

// Automation is a single Home Assistant automation document.
type Automation struct {
	ID          string      `yaml:"id"`
	Alias       string      `yaml:"alias"`
	Description string      `yaml:"description"`
	Mode        string      `yaml:"mode"`
	Triggers    []Trigger   `yaml:"trigger"`
	Conditions  []Condition `yaml:"condition,omitempty"`
	Actions     []Action    `yaml:"action"`
}

// Config holds generator settings.
type Config struct {
	// DenyDomains replaces the default safety list when non-empty.
	DenyDomains []string
}

// Generator turns patterns into automation documents.
type Generator struct {
	deny   map[string]struct{}
	logger *slog.Logger
}

// NewGenerator creates a generator with the given safety configuration.
func NewGenerator(cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	domains := cfg.DenyDomains
	if len(domains) == 0 {
		domains = defaultDenyDomains
	}
	deny := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		deny[d] = struct{}{}
	}
	return &Generator{deny: deny, logger: logger}
}

// Generate maps one pattern to an automation. The second return reports
// whether the pattern is automatable at all: conditional patterns, denied
// domains, and states with no service mapping all return false.
func (g *Generator) Generate(p pattern.Pattern) (Automation, bool) {
	switch p.Kind {
	case pattern.KindTemporal:
		return g.fromTemporal(p)
	case pattern.KindSequential:
		return g.fromSequential(p)
	default:
		return Automation{}, false
	}
}

// GenerateAll maps every automatable pattern, preserving input order.
func (g *Generator) GenerateAll(patterns []pattern.Pattern) []Automation {
	out := make([]Automation, 0, len(patterns))
	for _, p := range patterns {
		a, ok := g.Generate(p)
		if !ok {
			g.logger.Debug("pattern not automatable", slog.String("pattern", p.Signature()))
			continue
		}
		out = append(out, a)
	}
	return out
}

// Render marshals automations as one YAML list, the shape Home Assistant
// expects in automations.yaml.
func Render(automations []Automation) ([]byte, error) {
	return yaml.Marshal(automations)
}

func (g *Generator) fromTemporal(p pattern.Pattern) (Automation, bool) {
	t := p.Temporal
	action, ok := g.actionFor(t.EntityID, t.TargetState)
	if !ok {
		return Automation{}, false
	}

	minute := (t.MinuteMin + t.MinuteMax) / 2
	a := g.skeleton(p)
	a.Triggers = []Trigger{{Platform: "time", At: fmt.Sprintf("%02d:%02d:00", t.Hour, minute)}}
	if days := weekdaysFor(t.Scope, t.Weekday); len(days) > 0 {
		a.Conditions = []Condition{{Condition: "time", Weekday: days}}
	}
	a.Actions = []Action{action}
	return a, true
}

func (g *Generator) fromSequential(p pattern.Pattern) (Automation, bool) {
	s := p.Sequential
	action, ok := g.actionFor(s.ActionEntity, s.ActionState)
	if !ok {
		return Automation{}, false
	}

	a := g.skeleton(p)
	a.Triggers = []Trigger{{Platform: "state", EntityID: s.TriggerEntity, To: s.TriggerState}}
	a.Actions = []Action{action}
	return a, true
}

func (g *Generator) skeleton(p pattern.Pattern) Automation {
	return Automation{
		ID:    "pattern_" + p.ID.String(),
		Alias: p.Description,
		Description: fmt.Sprintf("Mined from %d observations at %.0f%% confidence.",
			p.Occurrences, p.Confidence*100),
		Mode: "single",
	}
}

// actionFor resolves the service call for putting entity into state. Denied
// domains and unmapped states yield no action.
func (g *Generator) actionFor(entityID, state string) (Action, bool) {
	domain := ""
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		domain = entityID[:i]
	}
	if _, denied := g.deny[domain]; denied {
		return Action{}, false
	}

	var service string
	switch domain {
	case "light", "switch", "fan", "input_boolean", "humidifier":
		switch state {
		case "on":
			service = domain + ".turn_on"
		case "off":
			service = domain + ".turn_off"
		}
	case "cover":
		switch state {
		case "open":
			service = "cover.open_cover"
		case "closed":
			service = "cover.close_cover"
		}
	case "media_player":
		switch state {
		case "off":
			service = "media_player.turn_off"
		case "on", "playing":
			service = "media_player.turn_on"
		}
	}
	if service == "" {
		return Action{}, false
	}
	return Action{Service: service, Target: Target{EntityID: entityID}}, true
}

var haWeekdays = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// weekdaysFor renders a day scope as a Home Assistant weekday condition
// list. Daily scope needs no condition.
func weekdaysFor(scope pattern.DayScope, weekday time.Weekday) []string {
	switch scope {
	case pattern.ScopeWeekday:
		return []string{"mon", "tue", "wed", "thu", "fri"}
	case pattern.ScopeWeekend:
		return []string{"sat", "sun"}
	case pattern.ScopeSpecificDay:
		return []string{haWeekdays[int(weekday)%7]}
	default:
		return nil
	}
}
