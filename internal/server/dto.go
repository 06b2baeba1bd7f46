package server

import (
	"orderflow/internal/domain"
	"orderflow/internal/engine"
)

// Request payloads

type CreateItemRequest struct {
	QuotationItemID string `json:"quotation_item_id,omitempty"`
	ProductID       string `json:"product_id,omitempty"`
	Description     string `json:"description" minLength:"1"`
	Quantity        int    `json:"quantity,omitempty" minimum:"0"`
	AssignedTo      string `json:"assigned_to,omitempty"`
}

type CreateOrderRequest struct {
	OpportunityID               string              `json:"opportunity_id" minLength:"1"`
	ContractID                  string              `json:"contract_id,omitempty"`
	ParentOrderID               string              `json:"parent_order_id,omitempty"`
	OrderType                   string              `json:"order_type,omitempty" enum:"main,one_time,long_term,company_registration,visa_kitas"`
	RequiresCompanyRegistration bool                `json:"requires_company_registration,omitempty"`
	Title                       string              `json:"title,omitempty"`
	Notes                       string              `json:"notes,omitempty"`
	PlannedStartDate            string              `json:"planned_start_date,omitempty" format:"date"`
	PlannedEndDate              string              `json:"planned_end_date,omitempty" format:"date"`
	AssignedTo                  string              `json:"assigned_to,omitempty"`
	AssignedTeam                string              `json:"assigned_team,omitempty"`
	Items                       []CreateItemRequest `json:"items,omitempty"`
}

func (r CreateOrderRequest) options(actorID string) engine.CreateOrderOptions {
	opts := engine.CreateOrderOptions{
		OpportunityID:               r.OpportunityID,
		ContractID:                  r.ContractID,
		ParentOrderID:               r.ParentOrderID,
		OrderType:                   domain.OrderType(r.OrderType),
		RequiresCompanyRegistration: r.RequiresCompanyRegistration,
		Title:                       r.Title,
		Notes:                       r.Notes,
		PlannedStartDate:            r.PlannedStartDate,
		PlannedEndDate:              r.PlannedEndDate,
		AssignedTo:                  r.AssignedTo,
		AssignedTeam:                r.AssignedTeam,
		ActorID:                     actorID,
	}
	for _, it := range r.Items {
		opts.Items = append(opts.Items, engine.CreateItemOptions(it))
	}
	return opts
}

type AddDependencyRequest struct {
	PrerequisiteOrderID string `json:"prerequisite_order_id" minLength:"1"`
	DependencyType      string `json:"dependency_type" enum:"company_registration,visa_kitas,sbu_quota,material_approval"`
}

type CreateRegistrationRequest struct {
	ExecutionOrderID string `json:"execution_order_id" minLength:"1"`
	CompanyName      string `json:"company_name" minLength:"1"`
	NIB              string `json:"nib,omitempty"`
	NPWP             string `json:"npwp,omitempty"`
	AktaNumber       string `json:"akta_number,omitempty"`
	SKKemenkumham    string `json:"sk_kemenkumham,omitempty"`
}

// Response payloads

type OrderListResponse struct {
	Items        []domain.ExecutionOrder `json:"items"`
	NextCursor   string                  `json:"next_cursor,omitempty"`
	StatusCounts map[string]int          `json:"status_counts,omitempty"`
}

type DependencyListResponse struct {
	Items []domain.ExecutionOrderDependency `json:"items"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}
