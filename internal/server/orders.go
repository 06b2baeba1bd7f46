package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"orderflow/internal/domain"
	"orderflow/internal/engine"
)

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-execution-order",
		Method:        http.MethodPost,
		Path:          "/execution-orders",
		Summary:       "Create an execution order",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateOrderRequest `json:"body"`
	}) (*struct {
		Body domain.ExecutionOrder `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateOrder(ctx, input.Body.options(actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExecutionOrder `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-execution-orders",
		Method:      http.MethodGet,
		Path:        "/execution-orders",
		Summary:     "List execution orders by opportunity or status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		OpportunityID string `query:"opportunity_id"`
		Status        string `query:"status"`
		Limit         int    `query:"limit" default:"50"`
		Cursor        string `query:"cursor"`
	}) (*struct {
		Body OrderListResponse `json:"body"`
	}, error) {
		page, err := e.ListOrders(ctx, engine.ListOrdersOptions{
			OpportunityID: input.OpportunityID,
			Status:        input.Status,
			Limit:         input.Limit,
			Cursor:        input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderListResponse `json:"body"`
		}{Body: OrderListResponse{Items: page.Orders, NextCursor: page.NextCursor, StatusCounts: page.StatusCounts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-execution-order",
		Method:      http.MethodGet,
		Path:        "/execution-orders/{id}",
		Summary:     "Get an execution order with its items",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.ExecutionOrder `json:"body"`
	}, error) {
		o, err := e.GetOrder(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExecutionOrder `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-execution-order",
		Method:      http.MethodPut,
		Path:        "/execution-orders/{id}/assign",
		Summary:     "Assign an execution order and start work",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID           string `path:"id"`
		AssignedTo   string `query:"assigned_to" required:"true"`
		AssignedTeam string `query:"assigned_team"`
	}) (*struct {
		Body domain.ExecutionOrder `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.AssignOrder(ctx, engine.AssignOptions{
			OrderID:      input.ID,
			AssignedTo:   input.AssignedTo,
			AssignedTeam: input.AssignedTeam,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExecutionOrder `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-execution-order-status",
		Method:      http.MethodPut,
		Path:        "/execution-orders/{id}/status",
		Summary:     "Change the status of an execution order",
		Description: "Completing an order releases the orders that depend on it.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID            string `path:"id"`
		Status        string `query:"status" required:"true" enum:"pending,in_progress,completed,blocked,cancelled"`
		ActualEndDate string `query:"actual_end_date" format:"date"`
	}) (*struct {
		Body engine.StatusUpdate `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.UpdateStatus(ctx, engine.StatusUpdateOptions{
			OrderID:       input.ID,
			Status:        input.Status,
			ActualEndDate: input.ActualEndDate,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.StatusUpdate `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-execution-order-events",
		Method:      http.MethodGet,
		Path:        "/execution-orders/{id}/events",
		Summary:     "List the audit trail of an execution order",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"100" maximum:"500"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		evts, err := e.OrderEvents(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: evts}}, nil
	})
}

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-execution-order-dependencies",
		Method:      http.MethodGet,
		Path:        "/execution-orders/{id}/dependencies",
		Summary:     "Summarize the prerequisites of an execution order",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.DependencySummary `json:"body"`
	}, error) {
		summary, err := e.CheckDependencies(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DependencySummary `json:"body"`
		}{Body: summary}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-execution-order-dependency",
		Method:        http.MethodPost,
		Path:          "/execution-orders/{id}/dependencies",
		Summary:       "Gate an execution order on another one",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body AddDependencyRequest `json:"body"`
	}) (*struct {
		Body domain.ExecutionOrderDependency `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		edge, err := e.AddDependency(ctx, engine.AddDependencyOptions{
			OrderID:             input.ID,
			PrerequisiteOrderID: input.Body.PrerequisiteOrderID,
			DependencyType:      domain.DependencyType(input.Body.DependencyType),
			ActorID:             actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExecutionOrderDependency `json:"body"`
		}{Body: edge}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-execution-order-dependents",
		Method:      http.MethodGet,
		Path:        "/execution-orders/{id}/dependents",
		Summary:     "List the edges that name an execution order as prerequisite",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body DependencyListResponse `json:"body"`
	}, error) {
		edges, err := e.Dependents(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependencyListResponse `json:"body"`
		}{Body: DependencyListResponse{Items: edges}}, nil
	})
}

func registerRegistrations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-company-registration",
		Method:        http.MethodPost,
		Path:          "/execution-orders/company-registration",
		Summary:       "Attach a company registration record to its order",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateRegistrationRequest `json:"body"`
	}) (*struct {
		Body domain.CompanyRegistrationInfo `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		info, err := e.CreateCompanyRegistrationInfo(ctx, engine.RegistrationOptions{
			OrderID:       input.Body.ExecutionOrderID,
			CompanyName:   input.Body.CompanyName,
			NIB:           input.Body.NIB,
			NPWP:          input.Body.NPWP,
			AktaNumber:    input.Body.AktaNumber,
			SKKemenkumham: input.Body.SKKemenkumham,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CompanyRegistrationInfo `json:"body"`
		}{Body: info}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-company-registration",
		Method:      http.MethodGet,
		Path:        "/execution-orders/company-registration/{id}",
		Summary:     "Get the registration record of an order",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.CompanyRegistrationInfo `json:"body"`
	}, error) {
		info, err := e.GetCompanyRegistrationInfo(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CompanyRegistrationInfo `json:"body"`
		}{Body: info}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-company-registration",
		Method:      http.MethodPost,
		Path:        "/execution-orders/company-registration/{id}/complete",
		Summary:     "Complete a company registration and release gated orders",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.RegistrationCompletion `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CompleteCompanyRegistration(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RegistrationCompletion `json:"body"`
		}{Body: res}, nil
	})
}
