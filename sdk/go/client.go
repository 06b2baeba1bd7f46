// Package orderflowsdk is a small client for the orderflow fulfillment API.
package orderflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBasePath = "/api/v1"

// Client is a minimal orderflow HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    defaultBasePath,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Order represents an execution order.
type Order struct {
	ID                          string  `json:"id"`
	OrderNo                     string  `json:"order_no"`
	OpportunityID               string  `json:"opportunity_id"`
	CompanyRegistrationOrderID  *string `json:"company_registration_order_id,omitempty"`
	OrderType                   string  `json:"order_type"`
	Status                      string  `json:"status"`
	RequiresCompanyRegistration bool    `json:"requires_company_registration"`
	Title                       string  `json:"title,omitempty"`
	ActualStartDate             *string `json:"actual_start_date,omitempty"`
	ActualEndDate               *string `json:"actual_end_date,omitempty"`
	AssignedTo                  *string `json:"assigned_to,omitempty"`
	AssignedTeam                *string `json:"assigned_team,omitempty"`
	Items                       []Item  `json:"items,omitempty"`
}

type Item struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Status      string `json:"status"`
}

// CreateOrder is the payload of CreateOrder.
type CreateOrder struct {
	OpportunityID               string       `json:"opportunity_id"`
	ContractID                  string       `json:"contract_id,omitempty"`
	OrderType                   string       `json:"order_type,omitempty"`
	RequiresCompanyRegistration bool         `json:"requires_company_registration,omitempty"`
	Title                       string       `json:"title,omitempty"`
	PlannedStartDate            string       `json:"planned_start_date,omitempty"`
	PlannedEndDate              string       `json:"planned_end_date,omitempty"`
	Items                       []CreateItem `json:"items,omitempty"`
}

type CreateItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity,omitempty"`
}

// Dependency is one gating edge.
type Dependency struct {
	ID                  string  `json:"id"`
	ExecutionOrderID    string  `json:"execution_order_id"`
	PrerequisiteOrderID string  `json:"prerequisite_order_id"`
	DependencyType      string  `json:"dependency_type"`
	Status              string  `json:"status"`
	SatisfiedAt         *string `json:"satisfied_at,omitempty"`
}

type DependencySummary struct {
	OrderID      string       `json:"order_id"`
	Total        int          `json:"total"`
	PendingCount int          `json:"pending_count"`
	AllSatisfied bool         `json:"all_satisfied"`
	Edges        []Dependency `json:"edges"`
}

type Registration struct {
	ID                 string  `json:"id"`
	ExecutionOrderID   string  `json:"execution_order_id"`
	CompanyName        string  `json:"company_name"`
	NIB                *string `json:"nib,omitempty"`
	NPWP               *string `json:"npwp,omitempty"`
	RegistrationStatus string  `json:"registration_status"`
	CompletedAt        *string `json:"completed_at,omitempty"`
}

// StatusResult is returned by status changes; Released lists unblocked orders.
type StatusResult struct {
	Order    Order    `json:"order"`
	Released []string `json:"released_order_ids"`
}

type RegistrationResult struct {
	Registration Registration `json:"registration"`
	Order        Order        `json:"order"`
	Released     []string     `json:"released_order_ids"`
}

// OrderPage wraps list responses with cursors.
type OrderPage struct {
	Items        []Order        `json:"items"`
	NextCursor   string         `json:"next_cursor"`
	StatusCounts map[string]int `json:"status_counts,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateOrder(ctx context.Context, in CreateOrder) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodPost, "execution-orders", in, &resp)
	return resp, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodGet, "execution-orders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListOrders returns one page; pass the previous NextCursor to continue.
func (c *Client) ListOrders(ctx context.Context, opportunityID, status string, limit int, cursor string) (OrderPage, error) {
	q := url.Values{}
	if opportunityID != "" {
		q.Set("opportunity_id", opportunityID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp OrderPage
	err := c.do(ctx, http.MethodGet, "execution-orders?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) AssignOrder(ctx context.Context, id, assignedTo, assignedTeam string) (Order, error) {
	q := url.Values{"assigned_to": {assignedTo}}
	if assignedTeam != "" {
		q.Set("assigned_team", assignedTeam)
	}
	var resp Order
	err := c.do(ctx, http.MethodPut, "execution-orders/"+url.PathEscape(id)+"/assign?"+q.Encode(), nil, &resp)
	return resp, err
}

// UpdateStatus changes the order status. actualEndDate may be empty.
func (c *Client) UpdateStatus(ctx context.Context, id, status, actualEndDate string) (StatusResult, error) {
	q := url.Values{"status": {status}}
	if actualEndDate != "" {
		q.Set("actual_end_date", actualEndDate)
	}
	var resp StatusResult
	err := c.do(ctx, http.MethodPut, "execution-orders/"+url.PathEscape(id)+"/status?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) Dependencies(ctx context.Context, id string) (DependencySummary, error) {
	var resp DependencySummary
	err := c.do(ctx, http.MethodGet, "execution-orders/"+url.PathEscape(id)+"/dependencies", nil, &resp)
	return resp, err
}

func (c *Client) AddDependency(ctx context.Context, id, prerequisiteID, dependencyType string) (Dependency, error) {
	body := map[string]string{
		"prerequisite_order_id": prerequisiteID,
		"dependency_type":       dependencyType,
	}
	var resp Dependency
	err := c.do(ctx, http.MethodPost, "execution-orders/"+url.PathEscape(id)+"/dependencies", body, &resp)
	return resp, err
}

// Dependents lists the edges that wait on id.
func (c *Client) Dependents(ctx context.Context, id string) ([]Dependency, error) {
	var resp struct {
		Items []Dependency `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "execution-orders/"+url.PathEscape(id)+"/dependents", nil, &resp)
	return resp.Items, err
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func (c *Client) OrderEvents(ctx context.Context, id string) ([]Event, error) {
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "execution-orders/"+url.PathEscape(id)+"/events", nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateRegistration(ctx context.Context, orderID, companyName string) (Registration, error) {
	body := map[string]string{
		"execution_order_id": orderID,
		"company_name":       companyName,
	}
	var resp Registration
	err := c.do(ctx, http.MethodPost, "execution-orders/company-registration", body, &resp)
	return resp, err
}

func (c *Client) GetRegistration(ctx context.Context, orderID string) (Registration, error) {
	var resp Registration
	err := c.do(ctx, http.MethodGet, "execution-orders/company-registration/"+url.PathEscape(orderID), nil, &resp)
	return resp, err
}

func (c *Client) CompleteRegistration(ctx context.Context, orderID string) (RegistrationResult, error) {
	var resp RegistrationResult
	err := c.do(ctx, http.MethodPost, "execution-orders/company-registration/"+url.PathEscape(orderID)+"/complete", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
