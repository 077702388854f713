package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labcore/internal/domain"
	"labcore/internal/metrics"
)

const (
	sampleCounterPrefix = "sampleNumber:"
	patientCounterKey   = "patientId"

	compensationAttempts = 3
	compensationBackoff  = 200 * time.Millisecond
)

// CreateSample runs the intake sequence: allocate a sample number, resolve
// the patient, persist the draft sample, decrement each consumable line, and
// post the finance entries. Every side effect committed before a failure is
// undone before the error is returned; only finance posting is best-effort.
func (s *Service) CreateSample(ctx context.Context, order domain.IntakeOrder) (*domain.Sample, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	// Read-only snapshot of the ordered tests, before anything mutates.
	tests, err := s.store.LookupTests(ctx, order.Tests)
	if err != nil {
		return nil, err
	}

	year := now().UTC().Year()
	seq, err := s.store.NextSequence(ctx, fmt.Sprintf("%s%d", sampleCounterPrefix, year))
	if err != nil {
		return nil, fmt.Errorf("allocate sample number: %w", err)
	}
	sampleNumber := domain.FormatSampleNumber(year, seq)

	patient, err := s.resolvePatient(ctx, order)
	if err != nil {
		return nil, err
	}

	draft := buildDraft(order, tests, sampleNumber, patient.PatientID)
	created, err := s.store.CreateSample(ctx, draft)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateSampleNumber) {
			metrics.IntakeConflicts.Inc()
			return nil, err
		}
		return nil, fmt.Errorf("persist sample: %w", err)
	}

	consumablesProfit, soldLines, err := s.processConsumables(ctx, created, order.Consumables)
	if err != nil {
		return nil, err
	}

	s.postLedgerEntries(ctx, created, order.RecordedBy, consumablesProfit, soldLines)

	metrics.IntakeCommitted.Inc()
	return &created, nil
}

func validateOrder(order domain.IntakeOrder) error {
	if strings.TrimSpace(order.PatientName) == "" {
		return &domain.ValidationError{Field: "patient_name", Reason: "is required"}
	}
	if order.TotalAmount < 0 {
		return &domain.ValidationError{Field: "total_amount", Reason: "cannot be negative"}
	}
	if order.PaidAmount != nil && *order.PaidAmount < 0 {
		return &domain.ValidationError{Field: "paid_amount", Reason: "cannot be negative"}
	}
	if order.PaymentStatus != nil && !order.PaymentStatus.Valid() {
		return &domain.ValidationError{Field: "payment_status", Reason: "unknown status " + string(*order.PaymentStatus)}
	}
	for idx, line := range order.Consumables {
		if line.Item <= 0 {
			return &domain.ValidationError{
				Field:  "consumables",
				Reason: fmt.Sprintf("line %d: invalid item reference", idx),
			}
		}
		if line.Quantity <= 0 {
			return &domain.ValidationError{
				Field:  "consumables",
				Reason: fmt.Sprintf("line %d: quantity must be positive", idx),
			}
		}
	}
	return nil
}

// resolvePatient reuses an existing patient matched by CNIC or phone, or
// registers a new one. Allocation failure fails the intake outright; patients
// are never created under a guessed id.
func (s *Service) resolvePatient(ctx context.Context, order domain.IntakeOrder) (*domain.Patient, error) {
	existing, err := s.store.FindPatientByKey(ctx, order.CNIC, order.Phone)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find patient: %w", err)
	}

	seq, err := s.store.NextSequence(ctx, patientCounterKey)
	if err != nil {
		s.log.Error().Err(err).Msg("patient id allocation failed, aborting intake")
		return nil, fmt.Errorf("allocate patient id: %w", err)
	}

	patient, err := s.store.CreatePatient(ctx, domain.Patient{
		PatientID:        domain.FormatPatientID(seq),
		Name:             strings.TrimSpace(order.PatientName),
		CNIC:             order.CNIC,
		Phone:            order.Phone,
		Age:              order.Age,
		Gender:           order.Gender,
		Address:          order.Address,
		GuardianName:     order.GuardianName,
		GuardianRelation: order.GuardianRelation,
	})
	if errors.Is(err, domain.ErrDuplicatePatientKey) {
		// Lost a concurrent first registration; adopt the winner.
		winner, findErr := s.store.FindPatientByKey(ctx, order.CNIC, order.Phone)
		if findErr != nil {
			return nil, fmt.Errorf("re-read patient after duplicate key: %w", findErr)
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return &patient, nil
}

func buildDraft(order domain.IntakeOrder, tests []domain.LabTest, sampleNumber, patientID string) domain.Sample {
	testLines := make([]domain.SampleTest, 0, len(tests))
	for _, test := range tests {
		testLines = append(testLines, domain.SampleTest{
			TestRef: test.ID,
			Name:    test.Name,
			Price:   test.Price,
		})
	}

	consumables := make([]domain.SampleConsumable, 0, len(order.Consumables))
	for _, line := range order.Consumables {
		consumables = append(consumables, domain.SampleConsumable{
			ItemRef:  line.Item,
			Quantity: line.Quantity,
		})
	}

	status := domain.DerivePaymentStatus(order.PaymentMethod)
	if order.PaymentStatus != nil {
		status = *order.PaymentStatus
	}
	paid := order.TotalAmount
	if order.PaidAmount != nil {
		paid = *order.PaidAmount
	}
	priority := strings.TrimSpace(order.Priority)
	if priority == "" {
		priority = "routine"
	}

	return domain.Sample{
		SampleNumber:  sampleNumber,
		PatientID:     patientID,
		PatientName:   strings.TrimSpace(order.PatientName),
		Phone:         order.Phone,
		CNIC:          order.CNIC,
		Age:           order.Age,
		Gender:        order.Gender,
		Address:       order.Address,
		GuardianName:  order.GuardianName,
		ReferredBy:    order.ReferredBy,
		Tests:         testLines,
		Consumables:   consumables,
		TotalAmount:   order.TotalAmount,
		PaidAmount:    paid,
		PaymentMethod: strings.TrimSpace(order.PaymentMethod),
		PaymentStatus: status,
		Priority:      priority,
		Status:        domain.SampleCollected,
	}
}

type undoEntry struct {
	itemID   int64
	quantity int
	lineIdx  int
}

// processConsumables drives the guarded decrements in line order, keeping an
// undo list of what committed. Any failed line compensates everything before
// it and removes the draft sample, then returns the line's typed error.
func (s *Service) processConsumables(ctx context.Context, sample domain.Sample, lines []domain.ConsumableLineInput) (float64, []string, error) {
	profit := 0.0
	soldLines := make([]string, 0, len(lines))
	undo := make([]undoEntry, 0, len(lines))

	for idx, line := range lines {
		item, err := s.store.DecrementStock(ctx, line.Item, line.Quantity, sample.SampleNumber, idx)
		if err != nil {
			s.compensate(ctx, sample, undo, err)
			return 0, nil, err
		}
		undo = append(undo, undoEntry{itemID: line.Item, quantity: line.Quantity, lineIdx: idx})
		profit += domain.LineProfit(*item, line.Quantity)
		soldLines = append(soldLines, formatSoldLine(*item, line.Quantity))
	}
	return profit, soldLines, nil
}

func formatSoldLine(item domain.InventoryItem, quantity int) string {
	if item.Unit == "" {
		return fmt.Sprintf("%s x%d", item.Name, quantity)
	}
	return fmt.Sprintf("%s x%d %s", item.Name, quantity, item.Unit)
}

// compensate undoes every committed decrement and deletes the draft sample.
// It runs detached from the request's cancellation so an aborted caller does
// not leave stock half-drawn; each step is idempotent and retried.
func (s *Service) compensate(ctx context.Context, sample domain.Sample, undo []undoEntry, cause error) {
	detached := context.WithoutCancel(ctx)

	reason := "error"
	var insufficient *domain.InsufficientStockError
	var notFound *domain.ItemNotFoundError
	switch {
	case errors.As(cause, &insufficient):
		reason = "insufficient_stock"
	case errors.As(cause, &notFound):
		reason = "item_not_found"
	}

	for _, entry := range undo {
		s.withRetry(fmt.Sprintf("release stock for item %d", entry.itemID), func() error {
			return s.store.ReleaseStock(detached, entry.itemID, entry.quantity, sample.SampleNumber, entry.lineIdx)
		})
	}
	s.withRetry("delete draft sample "+sample.SampleNumber, func() error {
		return s.store.DeleteSample(detached, sample.ID)
	})

	metrics.IntakeRolledBack.WithLabelValues(reason).Inc()
	s.log.Warn().
		Str("sample_number", sample.SampleNumber).
		Str("reason", reason).
		Err(cause).
		Msg("intake rolled back")
}

func (s *Service) withRetry(what string, op func() error) {
	var err error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		if err = op(); err == nil {
			return
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msgf("compensation step failed: %s", what)
		if attempt < compensationAttempts {
			time.Sleep(compensationBackoff * time.Duration(attempt))
		}
	}
	metrics.CompensationFailures.Inc()
	s.log.Error().Err(err).Msgf("compensation step gave up: %s", what)
}

// postLedgerEntries derives the two ledger entries from one paid amount.
// Consumables profit is carved out first and test revenue absorbs the
// remainder, so the recorded income never exceeds what was paid. Failures
// here are logged and counted but never fail the already-committed intake.
func (s *Service) postLedgerEntries(ctx context.Context, sample domain.Sample, recordedBy string, consumablesProfit float64, soldLines []string) {
	if sample.PaymentStatus != domain.PaymentPaid {
		return
	}
	if strings.TrimSpace(recordedBy) == "" {
		recordedBy = "system"
	}

	date := now().UTC()
	if consumablesProfit > sample.PaidAmount {
		consumablesProfit = sample.PaidAmount
	}
	if consumablesProfit > 0 {
		_, err := s.store.InsertFinanceRecord(ctx, domain.FinanceRecord{
			Date:        date,
			Amount:      consumablesProfit,
			Category:    domain.CategoryConsumablesProfit,
			Reference:   sample.SampleNumber,
			RecordedBy:  recordedBy,
			Description: "Consumables sold with " + sample.SampleNumber + ": " + strings.Join(soldLines, ", "),
		})
		if err != nil {
			metrics.LedgerPostFailures.Inc()
			s.log.Error().Err(err).
				Str("sample_number", sample.SampleNumber).
				Str("category", domain.CategoryConsumablesProfit).
				Msg("finance ledger post failed")
		}
	}

	testRevenue := sample.PaidAmount - consumablesProfit
	if testRevenue > 0 {
		_, err := s.store.InsertFinanceRecord(ctx, domain.FinanceRecord{
			Date:        date,
			Amount:      testRevenue,
			Category:    domain.CategoryTestRevenue,
			Reference:   sample.SampleNumber,
			RecordedBy:  recordedBy,
			Description: "Test revenue for " + sample.SampleNumber,
		})
		if err != nil {
			metrics.LedgerPostFailures.Inc()
			s.log.Error().Err(err).
				Str("sample_number", sample.SampleNumber).
				Str("category", domain.CategoryTestRevenue).
				Msg("finance ledger post failed")
		}
	}
}
