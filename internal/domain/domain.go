package domain

type Opportunity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Contract struct {
	ID            string `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	Title         string `json:"title"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type ExecutionOrder struct {
	ID                          string               `json:"id"`
	OrderNo                     string               `json:"order_no"`
	OpportunityID               string               `json:"opportunity_id"`
	ContractID                  *string              `json:"contract_id,omitempty"`
	ParentOrderID               *string              `json:"parent_order_id,omitempty"`
	CompanyRegistrationOrderID  *string              `json:"company_registration_order_id,omitempty"`
	OrderType                   OrderType            `json:"order_type" enum:"main,one_time,long_term,company_registration,visa_kitas"`
	Status                      OrderStatus          `json:"status" enum:"pending,in_progress,completed,blocked,cancelled"`
	RequiresCompanyRegistration bool                 `json:"requires_company_registration"`
	Title                       string               `json:"title,omitempty"`
	Notes                       string               `json:"notes,omitempty"`
	PlannedStartDate            *string              `json:"planned_start_date,omitempty" format:"date"`
	PlannedEndDate              *string              `json:"planned_end_date,omitempty" format:"date"`
	ActualStartDate             *string              `json:"actual_start_date,omitempty" format:"date"`
	ActualEndDate               *string              `json:"actual_end_date,omitempty" format:"date"`
	AssignedTo                  *string              `json:"assigned_to,omitempty"`
	AssignedTeam                *string              `json:"assigned_team,omitempty"`
	AssignedAt                  *string              `json:"assigned_at,omitempty" format:"date-time"`
	CreatedBy                   string               `json:"created_by"`
	CreatedAt                   string               `json:"created_at" format:"date-time"`
	UpdatedAt                   string               `json:"updated_at" format:"date-time"`
	Items                       []ExecutionOrderItem `json:"items,omitempty"`
}

type ExecutionOrderItem struct {
	ID               string     `json:"id"`
	ExecutionOrderID string     `json:"execution_order_id"`
	QuotationItemID  *string    `json:"quotation_item_id,omitempty"`
	ProductID        *string    `json:"product_id,omitempty"`
	Description      string     `json:"description"`
	Quantity         int        `json:"quantity"`
	Status           ItemStatus `json:"status" enum:"pending,in_progress,completed,blocked"`
	AssignedTo       *string    `json:"assigned_to,omitempty"`
	CreatedAt        string     `json:"created_at" format:"date-time"`
	UpdatedAt        string     `json:"updated_at" format:"date-time"`
}

// ExecutionOrderDependency is the edge ExecutionOrderID -> PrerequisiteOrderID.
type ExecutionOrderDependency struct {
	ID                  string           `json:"id"`
	ExecutionOrderID    string           `json:"execution_order_id"`
	PrerequisiteOrderID string           `json:"prerequisite_order_id"`
	DependencyType      DependencyType   `json:"dependency_type" enum:"company_registration,visa_kitas,sbu_quota,material_approval"`
	Status              DependencyStatus `json:"status" enum:"pending,satisfied,blocked"`
	SatisfiedAt         *string          `json:"satisfied_at,omitempty" format:"date-time"`
	CreatedAt           string           `json:"created_at" format:"date-time"`
}

type CompanyRegistrationInfo struct {
	ID                 string  `json:"id"`
	ExecutionOrderID   string  `json:"execution_order_id"`
	CompanyName        string  `json:"company_name"`
	NIB                *string `json:"nib,omitempty"`
	NPWP               *string `json:"npwp,omitempty"`
	AktaNumber         *string `json:"akta_number,omitempty"`
	SKKemenkumham      *string `json:"sk_kemenkumham,omitempty"`
	RegistrationStatus string  `json:"registration_status"`
	CompletedAt        *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

// DependencySummary aggregates the edges of one order.
type DependencySummary struct {
	OrderID      string                     `json:"order_id"`
	Total        int                        `json:"total"`
	PendingCount int                        `json:"pending_count"`
	AllSatisfied bool                       `json:"all_satisfied"`
	Edges        []ExecutionOrderDependency `json:"edges"`
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
