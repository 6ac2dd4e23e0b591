package server

import (
	"batchline/internal/domain"
	"batchline/internal/planner"
)

// Request payloads

type CreateOrderRequest struct {
	ID                 *string `json:"id,omitempty"`
	ArticleCode        string  `json:"article_code"`
	ArticleDescription *string `json:"article_description,omitempty"`
	ClientName         *string `json:"client_name,omitempty"`
	OrderReference     *string `json:"order_reference,omitempty"`
	QuantityKg         string  `json:"quantity_kg" example:"1500"`
	OrderDate          *string `json:"order_date,omitempty" format:"date"`
	Deadline           *string `json:"deadline,omitempty" format:"date"`
	ExternalID         *string `json:"external_id,omitempty"`
}

type CreateReactorRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	CapacityKg string `json:"capacity_kg" example:"2000"`
}

type UpdateReactorRequest struct {
	Active *bool `json:"active,omitempty"`
}

type CreateHolidayRequest struct {
	Day         string `json:"day" format:"date"`
	Description string `json:"description,omitempty"`
}

type PlanRunRequest struct {
	OrderIDs []string `json:"order_ids,omitempty"`
	ActorID  string   `json:"actor_id,omitempty"`
}

type ConfirmAssignmentRequest struct {
	OrderID   string `json:"order_id"`
	PlanDate  string `json:"plan_date" format:"date"`
	ReactorID string `json:"reactor_id"`
	Shift     string `json:"shift"`
}

type PlanConfirmRequest struct {
	Assignments []ConfirmAssignmentRequest `json:"assignments"`
	ActorID     string                     `json:"actor_id,omitempty"`
}

// Response payloads

type OrderResponse struct {
	ID                 string  `json:"id"`
	ArticleCode        string  `json:"article_code"`
	ArticleDescription string  `json:"article_description,omitempty"`
	ClientName         string  `json:"client_name,omitempty"`
	OrderReference     string  `json:"order_reference,omitempty"`
	QuantityKg         string  `json:"quantity_kg"`
	OrderedKg          string  `json:"ordered_kg"`
	ServedKg           string  `json:"served_kg"`
	PendingKg          string  `json:"pending_kg"`
	OrderDate          *string `json:"order_date,omitempty" format:"date"`
	Deadline           *string `json:"deadline,omitempty" format:"date"`
	Status             string  `json:"status" enum:"pending,planned,produced"`
	PlanDate           *string `json:"plan_date,omitempty" format:"date"`
	ReactorID          *string `json:"reactor_id,omitempty"`
	Shift              *string `json:"shift,omitempty"`
	BatchLabel         *string `json:"batch_label,omitempty"`
	Overflow           bool    `json:"overflow,omitempty"`
	ExternalID         *string `json:"external_id,omitempty"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

type ReactorResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CapacityKg string `json:"capacity_kg"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type HolidayResponse struct {
	Day         string `json:"day" format:"date"`
	Description string `json:"description,omitempty"`
}

type AssignmentResponse struct {
	OrderID     string  `json:"order_id"`
	SourceID    string  `json:"source_id"`
	ArticleCode string  `json:"article_code"`
	ClientName  string  `json:"client_name,omitempty"`
	QuantityKg  string  `json:"quantity_kg"`
	BatchLabel  string  `json:"batch_label,omitempty"`
	Deadline    *string `json:"deadline,omitempty" format:"date"`
	PlanDate    string  `json:"plan_date" format:"date"`
	ReactorID   string  `json:"reactor_id"`
	Shift       string  `json:"shift"`
	Overflow    bool    `json:"overflow,omitempty"`
}

type PlanRunResponse struct {
	PlannedCount int                  `json:"planned_count"`
	SplitCount   int                  `json:"split_count"`
	SkippedCount int                  `json:"skipped_count"`
	Assignments  []AssignmentResponse `json:"assignments,omitempty"`
}

type StatusResponse struct {
	OrderCounts    map[string]int `json:"order_counts"`
	ActiveReactors int            `json:"active_reactors"`
	Holidays       int            `json:"holidays"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload_json,omitempty"`
}

func orderResponse(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:                 o.ID,
		ArticleCode:        o.ArticleCode,
		ArticleDescription: o.ArticleDescription,
		ClientName:         o.ClientName,
		OrderReference:     o.OrderReference,
		QuantityKg:         o.QuantityKg.String(),
		OrderedKg:          o.OrderedKg.String(),
		ServedKg:           o.ServedKg.String(),
		PendingKg:          o.PendingKg.String(),
		OrderDate:          o.OrderDate,
		Deadline:           o.Deadline,
		Status:             o.Status,
		PlanDate:           o.PlanDate,
		ReactorID:          o.ReactorID,
		Shift:              o.Shift,
		BatchLabel:         o.BatchLabel,
		Overflow:           o.Overflow,
		ExternalID:         o.ExternalID,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func mapOrders(items []domain.Order) []OrderResponse {
	res := make([]OrderResponse, 0, len(items))
	for _, o := range items {
		res = append(res, orderResponse(o))
	}
	return res
}

func reactorResponse(r domain.Reactor) ReactorResponse {
	return ReactorResponse{
		ID:         r.ID,
		Name:       r.Name,
		CapacityKg: r.CapacityKg.String(),
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
	}
}

func mapReactors(items []domain.Reactor) []ReactorResponse {
	res := make([]ReactorResponse, 0, len(items))
	for _, r := range items {
		res = append(res, reactorResponse(r))
	}
	return res
}

func mapHolidays(items []domain.Holiday) []HolidayResponse {
	res := make([]HolidayResponse, 0, len(items))
	for _, h := range items {
		res = append(res, HolidayResponse{Day: h.Day, Description: h.Description})
	}
	return res
}

func assignmentResponse(f domain.Fragment) AssignmentResponse {
	return AssignmentResponse{
		OrderID:     f.OrderID,
		SourceID:    f.SourceID,
		ArticleCode: f.ArticleCode,
		ClientName:  f.ClientName,
		QuantityKg:  f.QuantityKg.String(),
		BatchLabel:  f.BatchLabel,
		Deadline:    f.Deadline,
		PlanDate:    f.PlanDate,
		ReactorID:   f.ReactorID,
		Shift:       f.Shift,
		Overflow:    f.Overflow,
	}
}

func runResponse(r planner.RunReport) PlanRunResponse {
	res := PlanRunResponse{
		PlannedCount: r.PlannedCount,
		SplitCount:   r.SplitCount,
		SkippedCount: r.SkippedCount,
	}
	for _, a := range r.Assignments {
		res.Assignments = append(res.Assignments, assignmentResponse(a))
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return res
}
