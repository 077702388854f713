package domain

import "time"

type SampleStatus string

const (
	SampleCollected  SampleStatus = "collected"
	SampleProcessing SampleStatus = "processing"
	SampleCompleted  SampleStatus = "completed"
	SampleCancelled  SampleStatus = "cancelled"
)

func (s SampleStatus) Valid() bool {
	switch s {
	case SampleCollected, SampleProcessing, SampleCompleted, SampleCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the sample lifecycle: collected -> processing ->
// completed, with cancellation allowed from any non-terminal state.
func (s SampleStatus) CanTransitionTo(next SampleStatus) bool {
	switch s {
	case SampleCollected:
		return next == SampleProcessing || next == SampleCancelled
	case SampleProcessing:
		return next == SampleCompleted || next == SampleCancelled
	}
	return false
}

const (
	CategoryConsumablesProfit = "Consumables Profit"
	CategoryTestRevenue       = "Test Revenue"
)

type Patient struct {
	ID               int64     `json:"id"`
	PatientID        string    `json:"patient_id"`
	Name             string    `json:"name"`
	CNIC             *string   `json:"cnic,omitempty"`
	Phone            *string   `json:"phone,omitempty"`
	Age              *int      `json:"age,omitempty"`
	Gender           *string   `json:"gender,omitempty"`
	Address          *string   `json:"address,omitempty"`
	GuardianName     *string   `json:"guardian_name,omitempty"`
	GuardianRelation *string   `json:"guardian_relation,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type InventoryItem struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Unit             string    `json:"unit"`
	CurrentStock     int       `json:"current_stock"`
	CostPerUnit      float64   `json:"cost_per_unit"`
	SalePricePerUnit float64   `json:"sale_price_per_unit"`
	SalePricePerPack float64   `json:"sale_price_per_pack"`
	ItemsPerPack     int       `json:"items_per_pack"`
	ReorderLevel     *int      `json:"reorder_level,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type LabTest struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Category  *string   `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sample is one intake event. Patient demographics and test prices are
// snapshotted at intake time so later edits to the patient or the catalog do
// not retroactively alter historical samples.
type Sample struct {
	ID            int64              `json:"id"`
	SampleNumber  string             `json:"sample_number"`
	PatientID     string             `json:"patient_id"`
	PatientName   string             `json:"patient_name"`
	Phone         *string            `json:"phone,omitempty"`
	CNIC          *string            `json:"cnic,omitempty"`
	Age           *int               `json:"age,omitempty"`
	Gender        *string            `json:"gender,omitempty"`
	Address       *string            `json:"address,omitempty"`
	GuardianName  *string            `json:"guardian_name,omitempty"`
	ReferredBy    *string            `json:"referred_by,omitempty"`
	Tests         []SampleTest       `json:"tests,omitempty"`
	Consumables   []SampleConsumable `json:"consumables,omitempty"`
	TotalAmount   float64            `json:"total_amount"`
	PaidAmount    float64            `json:"paid_amount"`
	PaymentMethod string             `json:"payment_method"`
	PaymentStatus PaymentStatus      `json:"payment_status"`
	Priority      string             `json:"priority"`
	Status        SampleStatus       `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type SampleTest struct {
	TestRef int64   `json:"test_ref"`
	Name    string  `json:"name"`
	Price   float64 `json:"price"`
}

type SampleConsumable struct {
	ItemRef  int64 `json:"item_ref"`
	Quantity int   `json:"quantity"`
}

// FinanceRecord is an append-only ledger entry; never mutated after creation.
type FinanceRecord struct {
	ID          int64     `json:"id"`
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Reference   string    `json:"reference"`
	RecordedBy  string    `json:"recorded_by"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type MovementDirection string

const (
	MovementOut MovementDirection = "out"
	MovementIn  MovementDirection = "in"
)

// StockMovement records every stock mutation. The (reference, line_idx,
// direction) uniqueness is what makes intake compensation idempotent.
type StockMovement struct {
	ID        int64             `json:"id"`
	ItemID    int64             `json:"item_id"`
	Reference string            `json:"reference"`
	LineIdx   int               `json:"line_idx"`
	Direction MovementDirection `json:"direction"`
	Quantity  int               `json:"quantity"`
	CreatedAt time.Time         `json:"created_at"`
}

type ConsumableLineInput struct {
	Item     int64 `json:"item"`
	Quantity int   `json:"quantity"`
}

// IntakeOrder is the boundary input of the sample intake flow.
type IntakeOrder struct {
	PatientName      string                `json:"patient_name"`
	Phone            *string               `json:"phone"`
	CNIC             *string               `json:"cnic"`
	Age              *int                  `json:"age"`
	Gender           *string               `json:"gender"`
	Address          *string               `json:"address"`
	GuardianName     *string               `json:"guardian_name"`
	GuardianRelation *string               `json:"guardian_relation"`
	ReferredBy       *string               `json:"referred_by"`
	Tests            []int64               `json:"tests"`
	Consumables      []ConsumableLineInput `json:"consumables"`
	TotalAmount      float64               `json:"total_amount"`
	PaidAmount       *float64              `json:"paid_amount"`
	PaymentMethod    string                `json:"payment_method"`
	PaymentStatus    *PaymentStatus        `json:"payment_status"`
	Priority         string                `json:"priority"`
	RecordedBy       string                `json:"recorded_by"`
}

type DailyFinanceSummary struct {
	Day               string  `json:"day"`
	ConsumablesProfit float64 `json:"consumables_profit"`
	TestRevenue       float64 `json:"test_revenue"`
	Total             float64 `json:"total"`
	RecordCount       int     `json:"record_count"`
}
