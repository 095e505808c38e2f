package domain

type AdjustmentKind string

const (
	AdjustmentRemoved AdjustmentKind = "removed"
	AdjustmentClamped AdjustmentKind = "clamped"
)

type AdjustmentReason string

const (
	ReasonNone       AdjustmentReason = ""
	ReasonOutOfStock AdjustmentReason = "out_of_stock"
	ReasonNotFound   AdjustmentReason = "not_found"
)

// Adjustment records one change reconciliation made to a cart line.
type Adjustment struct {
	ProductID   int64
	Name        string
	Kind        AdjustmentKind
	Reason      AdjustmentReason
	OldQuantity int
	NewQuantity int
}
