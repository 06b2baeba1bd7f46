package domain

type OrderType string

const (
	OrderTypeMain                OrderType = "main"
	OrderTypeOneTime             OrderType = "one_time"
	OrderTypeLongTerm            OrderType = "long_term"
	OrderTypeCompanyRegistration OrderType = "company_registration"
	OrderTypeVisaKitas           OrderType = "visa_kitas"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMain, OrderTypeOneTime, OrderTypeLongTerm, OrderTypeCompanyRegistration, OrderTypeVisaKitas:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderBlocked    OrderStatus = "blocked"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderInProgress, OrderCompleted, OrderBlocked, OrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemBlocked    ItemStatus = "blocked"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemInProgress, ItemCompleted, ItemBlocked:
		return true
	}
	return false
}

type DependencyType string

const (
	DependencyCompanyRegistration DependencyType = "company_registration"
	DependencyVisaKitas           DependencyType = "visa_kitas"
	DependencySBUQuota            DependencyType = "sbu_quota"
	DependencyMaterialApproval    DependencyType = "material_approval"
)

func (t DependencyType) Valid() bool {
	switch t {
	case DependencyCompanyRegistration, DependencyVisaKitas, DependencySBUQuota, DependencyMaterialApproval:
		return true
	}
	return false
}

type DependencyStatus string

const (
	DependencyPending   DependencyStatus = "pending"
	DependencySatisfied DependencyStatus = "satisfied"
	DependencyBlocked   DependencyStatus = "blocked"
)

func (s DependencyStatus) Valid() bool {
	switch s {
	case DependencyPending, DependencySatisfied, DependencyBlocked:
		return true
	}
	return false
}

// Registration record statuses. The column is free-form; these are the values the engine writes.
const (
	RegistrationInProgress = "in_progress"
	RegistrationCompleted  = "completed"
)
