package domain

import "github.com/shopspring/decimal"

// Order is one production block: a unit of manufacturing demand that the
// planner may split and assign to a (date, reactor, shift) slot.
type Order struct {
	ID                 string          `json:"id"`
	ArticleCode        string          `json:"article_code"`
	ArticleDescription string          `json:"article_description,omitempty"`
	ClientName         string          `json:"client_name,omitempty"`
	OrderReference     string          `json:"order_reference,omitempty"`
	QuantityKg         decimal.Decimal `json:"quantity_kg"`
	OrderedKg          decimal.Decimal `json:"ordered_kg"`
	ServedKg           decimal.Decimal `json:"served_kg"`
	PendingKg          decimal.Decimal `json:"pending_kg"`
	OrderDate          *string         `json:"order_date,omitempty" format:"date"`
	Deadline           *string         `json:"deadline,omitempty" format:"date"`
	Status             string          `json:"status" enum:"pending,planned,produced"`
	PlanDate           *string         `json:"plan_date,omitempty" format:"date"`
	ReactorID          *string         `json:"reactor_id,omitempty"`
	Shift              *string         `json:"shift,omitempty"`
	BatchLabel         *string         `json:"batch_label,omitempty"`
	Overflow           bool            `json:"overflow,omitempty"`
	ExternalID         *string         `json:"external_id,omitempty"`
	CreatedAt          string          `json:"created_at" format:"date-time"`
	UpdatedAt          string          `json:"updated_at" format:"date-time"`
}

const (
	StatusPending  = "pending"
	StatusPlanned  = "planned"
	StatusProduced = "produced"
)

// Planned reports whether the order carries a resolved assignment.
func (o Order) Planned() bool {
	return o.Status == StatusPlanned && o.PlanDate != nil && o.ReactorID != nil && o.Shift != nil
}

// Reactor is a production unit with a fixed daily capacity per shift.
// Read-only input for a planning run.
type Reactor struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	CapacityKg decimal.Decimal `json:"capacity_kg"`
	Active     bool            `json:"active"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

// Holiday blocks a single calendar day. Weekends are blocked by policy,
// not stored.
type Holiday struct {
	Day         string `json:"day" format:"date"`
	Description string `json:"description,omitempty"`
}

// Fragment is one planned sub-batch produced by a run: the new order row
// it became plus the slot it was given.
type Fragment struct {
	OrderID     string          `json:"order_id"`
	SourceID    string          `json:"source_id"`
	ArticleCode string          `json:"article_code"`
	ClientName  string          `json:"client_name,omitempty"`
	QuantityKg  decimal.Decimal `json:"quantity_kg"`
	BatchLabel  string          `json:"batch_label,omitempty"`
	Deadline    *string         `json:"deadline,omitempty" format:"date"`
	PlanDate    string          `json:"plan_date" format:"date"`
	ReactorID   string          `json:"reactor_id"`
	Shift       string          `json:"shift"`
	Overflow    bool            `json:"overflow,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
