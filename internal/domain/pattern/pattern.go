// Package pattern defines the tagged-variant pattern record produced by the
// analyzers and consumed by ranking, storage, and the automation mapper.
package pattern

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind tags the three pattern variants.
type Kind string

const (
	KindTemporal    Kind = "temporal"
	KindSequential  Kind = "sequential"
	KindConditional Kind = "conditional"
)

// Kinds lists every pattern kind in report order.
func Kinds() []Kind {
	return []Kind{KindTemporal, KindSequential, KindConditional}
}

// DayScope narrows a temporal pattern to a subset of calendar days.
type DayScope string

const (
	ScopeDaily       DayScope = "daily"
	ScopeWeekday     DayScope = "weekday"
	ScopeWeekend     DayScope = "weekend"
	ScopeSpecificDay DayScope = "specific_day"
)

// specificity orders day scopes from most to least specific.
var specificity = map[DayScope]int{
	ScopeSpecificDay: 0,
	ScopeWeekday:     1,
	ScopeWeekend:     1,
	ScopeDaily:       2,
}

// Temporal is the payload of a time-of-day pattern.
type Temporal struct {
	EntityID    string       `json:"entity_id"`
	TargetState string       `json:"target_state"`
	Hour        int          `json:"hour"`
	MinuteMin   int          `json:"minute_min"`
	MinuteMax   int          `json:"minute_max"`
	Scope       DayScope     `json:"scope"`
	Weekday     time.Weekday `json:"weekday,omitempty"` // valid when Scope == specific_day
}

// Sequential is the payload of a trigger-then-action pattern.
type Sequential struct {
	TriggerEntity   string  `json:"trigger_entity"`
	TriggerState    string  `json:"trigger_state"`
	ActionEntity    string  `json:"action_entity"`
	ActionState     string  `json:"action_state"`
	WindowSeconds   int     `json:"window_seconds"`
	AvgDelaySeconds float64 `json:"avg_delay_seconds"`
}

// ConditionType tags the predicate attached to a conditional pattern.
type ConditionType string

const (
	ConditionTime     ConditionType = "time"
	ConditionSun      ConditionType = "sun"
	ConditionPresence ConditionType = "presence"
	ConditionState    ConditionType = "state"
)

// Presence predicates
const (
	PresenceAnyoneHome   = "anyone_home"
	PresenceEveryoneHome = "everyone_home"
)

// Condition is the single predicate of a conditional pattern. The populated
// fields depend on Type.
type Condition struct {
	Type ConditionType `json:"type"`

	// time: Operator is ">=" or "<" applied to Hour
	Operator string `json:"operator,omitempty"`
	Hour     int    `json:"hour,omitempty"`

	// sun
	SunPosition string `json:"sun_position,omitempty"`

	// presence
	Presence string `json:"presence,omitempty"`

	// state: another entity equals a specific state
	EntityID string `json:"entity_id,omitempty"`
	State    string `json:"state,omitempty"`
}

// Describe renders the predicate for humans.
func (c Condition) Describe() string {
	switch c.Type {
	case ConditionTime:
		if c.Operator == ">=" {
			return fmt.Sprintf("after %02d:00", c.Hour)
		}
		return fmt.Sprintf("before %02d:00", c.Hour)
	case ConditionSun:
		if c.SunPosition == "below_horizon" {
			return "after sunset"
		}
		return "after sunrise"
	case ConditionPresence:
		if c.Presence == PresenceEveryoneHome {
			return "everyone is home"
		}
		return "someone is home"
	case ConditionState:
		return fmt.Sprintf("%s is '%s'", FriendlyName(c.EntityID), c.State)
	default:
		return string(c.Type)
	}
}

// signature is the stable identity of the predicate, used for dedup keys.
func (c Condition) signature() string {
	return strings.Join([]string{
		string(c.Type), c.Operator, fmt.Sprint(c.Hour),
		c.SunPosition, c.Presence, c.EntityID, c.State,
	}, "|")
}

// Conditional is the payload of a condition-correlated pattern. The
// correlation is P(condition | action); causal judgment is left to review.
type Conditional struct {
	ActionEntity string    `json:"action_entity"`
	ActionState  string    `json:"action_state"`
	Condition    Condition `json:"condition"`
}

// Pattern is a discovered correlation. Exactly one variant payload is
// populated, selected by Kind.
type Pattern struct {
	ID          uuid.UUID `json:"id"`
	Kind        Kind      `json:"kind"`
	Confidence  float64   `json:"confidence"`
	Occurrences int       `json:"occurrences"`
	Trials      int       `json:"trials"`
	Description string    `json:"description"`

	Temporal    *Temporal    `json:"temporal,omitempty"`
	Sequential  *Sequential  `json:"sequential,omitempty"`
	Conditional *Conditional `json:"conditional,omitempty"`
}

// Signature returns a stable identity for exact-duplicate detection and
// deterministic ordering.
func (p Pattern) Signature() string {
	switch p.Kind {
	case KindTemporal:
		t := p.Temporal
		return fmt.Sprintf("temporal|%s|%s|%d|%s|%d", t.EntityID, t.TargetState, t.Hour, t.Scope, t.Weekday)
	case KindSequential:
		s := p.Sequential
		return fmt.Sprintf("sequential|%s|%s|%s|%s", s.TriggerEntity, s.TriggerState, s.ActionEntity, s.ActionState)
	case KindConditional:
		c := p.Conditional
		return fmt.Sprintf("conditional|%s|%s|%s", c.ActionEntity, c.ActionState, c.Condition.signature())
	default:
		return string(p.Kind)
	}
}

// DedupKey returns the collapse key for near-duplicate detection: temporal
// patterns collapse across day-scope specificity, sequential patterns
// collapse across symmetric direction, conditional patterns collapse on the
// exact signature.
func (p Pattern) DedupKey() string {
	switch p.Kind {
	case KindTemporal:
		t := p.Temporal
		return fmt.Sprintf("temporal|%s|%s|%d", t.EntityID, t.TargetState, t.Hour)
	case KindSequential:
		s := p.Sequential
		a := s.TriggerEntity + "→" + s.TriggerState
		b := s.ActionEntity + "→" + s.ActionState
		pair := []string{a, b}
		sort.Strings(pair)
		return "sequential|" + pair[0] + "|" + pair[1]
	default:
		return p.Signature()
	}
}

// Specificity ranks a pattern's day scope; lower is more specific. Non
// temporal patterns rank last so scope never affects their ordering.
func (p Pattern) Specificity() int {
	if p.Kind == KindTemporal && p.Temporal != nil {
		return specificity[p.Temporal.Scope]
	}
	return len(specificity)
}

// idNamespace seeds deterministic pattern IDs so repeated runs over the same
// input produce identical output.
var idNamespace = uuid.MustParse("b9a1e1f2-4c83-5e46-9fd2-7d1a30c2a6e1")

// DeterministicID derives a stable UUID from a pattern signature.
func DeterministicID(signature string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(signature))
}

// FriendlyName renders an entity id for human-readable descriptions
// ("light.living_room" → "Living Room").
func FriendlyName(entityID string) string {
	name := entityID
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		name = entityID[i+1:]
	}
	words := strings.Split(strings.ReplaceAll(name, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FormatDelay renders a delay in seconds as "42s" or "2m 30s".
func FormatDelay(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", int(seconds))
	}
	return fmt.Sprintf("%dm %ds", int(seconds)/60, int(seconds)%60)
}
