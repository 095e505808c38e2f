package handler

type GetCartRequest struct {
	VisitorID string `json:"visitor_id"`
}

type CartReply struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Code    string           `json:"code"`
	Cart    CartViewResponse `json:"cart"`
}

type ReconcileRequest struct {
	Items map[string]int `json:"items"`
}

type ReconcileReply struct {
	Success     bool                 `json:"success"`
	Message     string               `json:"message"`
	Code        string               `json:"code"`
	Items       map[string]int       `json:"items"`
	Adjustments []AdjustmentResponse `json:"adjustments"`
}

type SettleRequest struct {
	VisitorID      string           `json:"visitor_id"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	Customer       *CustomerPayload `json:"customer,omitempty"`
}

type SettleReply struct {
	Success     bool                 `json:"success"`
	Message     string               `json:"message"`
	Code        string               `json:"code"`
	Order       *OrderResponse       `json:"order,omitempty"`
	Adjustments []AdjustmentResponse `json:"adjustments,omitempty"`
}
