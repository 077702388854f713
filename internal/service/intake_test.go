package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"labcore/internal/domain"
	"labcore/internal/repository"
	"labcore/internal/testutil"

	"github.com/rs/zerolog"
)

var _ Store = (*testutil.MemStore)(nil)

func newTestService(store Store) *Service {
	return New(store, zerolog.Nop())
}

func strPtr(s string) *string { return &s }

func syringeItem(stock int) domain.InventoryItem {
	return domain.InventoryItem{
		Name:             "Syringe 5ml",
		Unit:             "pcs",
		CurrentStock:     stock,
		CostPerUnit:      2,
		SalePricePerUnit: 5,
	}
}

func baseOrder() domain.IntakeOrder {
	return domain.IntakeOrder{
		PatientName:   "Ali Raza",
		Phone:         strPtr("03001234567"),
		CNIC:          strPtr("3520112223334"),
		TotalAmount:   100,
		PaymentMethod: "cash",
		RecordedBy:    "reception",
	}
}

func TestCreateSample_ScenarioA(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(10))
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{{Item: item.ID, Quantity: 4}}

	sample, err := svc.CreateSample(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.StockOf(item.ID); got != 6 {
		t.Errorf("expected stock 6, got %d", got)
	}
	if sample.Status != domain.SampleCollected {
		t.Errorf("expected status collected, got %s", sample.Status)
	}

	year := time.Now().UTC().Year()
	want := fmt.Sprintf("LAB-%d-1", year)
	if sample.SampleNumber != want {
		t.Errorf("expected sample number %s, got %s", want, sample.SampleNumber)
	}

	records := store.FinanceRecords()
	if len(records) != 2 {
		t.Fatalf("expected 2 finance records, got %d", len(records))
	}
	var profit, revenue *domain.FinanceRecord
	for i := range records {
		switch records[i].Category {
		case domain.CategoryConsumablesProfit:
			profit = &records[i]
		case domain.CategoryTestRevenue:
			revenue = &records[i]
		}
	}
	if profit == nil || profit.Amount != 12 {
		t.Fatalf("expected consumables profit 12, got %+v", profit)
	}
	if !strings.Contains(profit.Description, "Syringe 5ml x4 pcs") {
		t.Errorf("expected sold line in description, got %q", profit.Description)
	}
	if revenue == nil || revenue.Amount != 88 {
		t.Fatalf("expected test revenue 88, got %+v", revenue)
	}
	if profit.Reference != sample.SampleNumber || revenue.Reference != sample.SampleNumber {
		t.Error("finance records must reference the sample number")
	}
}

func TestCreateSample_LedgerCompleteness(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(100))
	svc := newTestService(store)

	paid := 500.0
	order := baseOrder()
	order.TotalAmount = 500
	order.PaidAmount = &paid
	order.Consumables = []domain.ConsumableLineInput{{Item: item.ID, Quantity: 40}}

	sample, err := svc.CreateSample(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := store.FinanceRecords()
	if len(records) != 2 {
		t.Fatalf("expected exactly 2 records, got %d", len(records))
	}
	sum := 0.0
	for _, record := range records {
		if record.Reference != sample.SampleNumber {
			t.Errorf("record %d references %q, want %q", record.ID, record.Reference, sample.SampleNumber)
		}
		sum += record.Amount
	}
	if sum != paid {
		t.Errorf("recorded income %v must equal paid amount %v", sum, paid)
	}
}

func TestCreateSample_ScenarioB_InsufficientStock(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(3))
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{{Item: item.ID, Quantity: 5}}

	_, err := svc.CreateSample(context.Background(), order)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Requested != 5 || insufficient.Available != 3 {
		t.Errorf("unexpected error detail: %+v", insufficient)
	}

	if got := store.StockOf(item.ID); got != 3 {
		t.Errorf("stock must be unchanged, got %d", got)
	}
	if n := store.SampleCount(); n != 0 {
		t.Errorf("no sample may persist, found %d", n)
	}
	if n := len(store.FinanceRecords()); n != 0 {
		t.Errorf("no finance records may exist, found %d", n)
	}
}

func TestCreateSample_RollbackOnPartialFailure(t *testing.T) {
	store := testutil.NewMemStore()
	itemA := store.AddItem(syringeItem(10))
	itemB := store.AddItem(domain.InventoryItem{
		Name:             "Gloves",
		Unit:             "pair",
		CurrentStock:     3,
		CostPerUnit:      1,
		SalePricePerUnit: 2,
	})
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{
		{Item: itemA.ID, Quantity: 2},
		{Item: itemB.ID, Quantity: 100},
	}

	_, err := svc.CreateSample(context.Background(), order)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	if got := store.StockOf(itemA.ID); got != 10 {
		t.Errorf("item A stock must be restored to 10, got %d", got)
	}
	if got := store.StockOf(itemB.ID); got != 3 {
		t.Errorf("item B stock must be unchanged, got %d", got)
	}
	if n := store.SampleCount(); n != 0 {
		t.Errorf("draft sample must be deleted, found %d", n)
	}
	if n := len(store.FinanceRecords()); n != 0 {
		t.Errorf("no finance records may exist, found %d", n)
	}
}

func TestCreateSample_ItemNotFoundRollsBack(t *testing.T) {
	store := testutil.NewMemStore()
	itemA := store.AddItem(syringeItem(10))
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{
		{Item: itemA.ID, Quantity: 2},
		{Item: 999, Quantity: 1},
	}

	_, err := svc.CreateSample(context.Background(), order)
	var notFound *domain.ItemNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ItemNotFoundError, got %v", err)
	}
	if got := store.StockOf(itemA.ID); got != 10 {
		t.Errorf("item A stock must be restored to 10, got %d", got)
	}
	if n := store.SampleCount(); n != 0 {
		t.Errorf("draft sample must be deleted, found %d", n)
	}
}

func TestCreateSample_PatientIdempotence(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)

	first := baseOrder()
	if _, err := svc.CreateSample(context.Background(), first); err != nil {
		t.Fatalf("first intake: %v", err)
	}
	second := baseOrder()
	second.PatientName = "Ali R."
	if _, err := svc.CreateSample(context.Background(), second); err != nil {
		t.Fatalf("second intake: %v", err)
	}

	patients, _ := store.ListPatients(context.Background(), repository.PatientListFilter{})
	if len(patients) != 1 {
		t.Fatalf("expected 1 patient after two matching intakes, got %d", len(patients))
	}
	if patients[0].PatientID != "LP01" {
		t.Errorf("expected LP01, got %s", patients[0].PatientID)
	}

	third := baseOrder()
	third.CNIC = strPtr("9999988887777")
	third.Phone = strPtr("03210000000")
	if _, err := svc.CreateSample(context.Background(), third); err != nil {
		t.Fatalf("third intake: %v", err)
	}
	patients, _ = store.ListPatients(context.Background(), repository.PatientListFilter{})
	if len(patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(patients))
	}
	if patients[1].PatientID != "LP02" {
		t.Errorf("expected LP02, got %s", patients[1].PatientID)
	}
}

// racingPatientStore forces FindPatientByKey to miss a fixed number of times,
// reproducing the window where two first registrations both observe no patient
// before the unique index stops the second insert.
type racingPatientStore struct {
	*testutil.MemStore
	forcedMisses int
}

func (s *racingPatientStore) FindPatientByKey(ctx context.Context, cnic, phone *string) (*domain.Patient, error) {
	if s.forcedMisses > 0 {
		s.forcedMisses--
		return nil, domain.ErrNotFound
	}
	return s.MemStore.FindPatientByKey(ctx, cnic, phone)
}

func TestCreateSample_ConcurrentRegistrationAdoptsWinner(t *testing.T) {
	mem := testutil.NewMemStore()
	store := &racingPatientStore{MemStore: mem}
	svc := newTestService(store)

	if _, err := svc.CreateSample(context.Background(), baseOrder()); err != nil {
		t.Fatalf("first intake: %v", err)
	}

	// Second intake for the same CNIC races past the lookup; the duplicate-key
	// error from the insert must resolve to the winner, not fail the intake.
	store.forcedMisses = 1
	sample, err := svc.CreateSample(context.Background(), baseOrder())
	if err != nil {
		t.Fatalf("racing intake must recover: %v", err)
	}
	if sample.PatientID != "LP01" {
		t.Errorf("expected the winner's id LP01, got %s", sample.PatientID)
	}

	patients, _ := mem.ListPatients(context.Background(), repository.PatientListFilter{})
	if len(patients) != 1 {
		t.Fatalf("expected 1 patient after the race, got %d", len(patients))
	}
}

// staleSampleStore serves one read with an outdated status, reproducing a
// transition that loses a concurrent update between read and conditional write.
type staleSampleStore struct {
	*testutil.MemStore
	staleReads int
}

func (s *staleSampleStore) GetSampleByID(ctx context.Context, id int64) (*domain.Sample, error) {
	sample, err := s.MemStore.GetSampleByID(ctx, id)
	if err == nil && s.staleReads > 0 {
		s.staleReads--
		outdated := *sample
		outdated.Status = domain.SampleCollected
		return &outdated, nil
	}
	return sample, err
}

func TestUpdateSampleStatus_LostRaceIsConflict(t *testing.T) {
	mem := testutil.NewMemStore()
	store := &staleSampleStore{MemStore: mem}
	svc := newTestService(store)

	sample, err := svc.CreateSample(context.Background(), baseOrder())
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := svc.UpdateSampleStatus(context.Background(), sample.ID, domain.SampleProcessing); err != nil {
		t.Fatalf("collected -> processing: %v", err)
	}

	store.staleReads = 1
	_, err = svc.UpdateSampleStatus(context.Background(), sample.ID, domain.SampleProcessing)
	if !errors.Is(err, domain.ErrStatusConflict) {
		t.Fatalf("expected status conflict for the lost race, got %v", err)
	}

	current, err := mem.GetSampleByID(context.Background(), sample.ID)
	if err != nil {
		t.Fatalf("sample must still exist: %v", err)
	}
	if current.Status != domain.SampleProcessing {
		t.Errorf("status must be untouched by the losing update, got %s", current.Status)
	}
}

func TestCreateSample_ScenarioC_ConcurrentOrders(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(10))
	svc := newTestService(store)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order := baseOrder()
			// Distinct patients so the runs are independent.
			order.CNIC = strPtr(fmt.Sprintf("352011222333%d", i))
			order.Phone = strPtr(fmt.Sprintf("0300123456%d", i))
			order.Consumables = []domain.ConsumableLineInput{{Item: item.ID, Quantity: 6}}
			_, results[i] = svc.CreateSample(context.Background(), order)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientStockError for the loser, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	if got := store.StockOf(item.ID); got != 4 {
		t.Errorf("expected final stock 4, got %d", got)
	}
	if n := store.SampleCount(); n != 1 {
		t.Errorf("expected exactly one committed sample, got %d", n)
	}
}

func TestCreateSample_ValidationAbortsBeforeMutation(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(10))
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{
		{Item: item.ID, Quantity: 2},
		{Item: 0, Quantity: 1},
	}

	_, err := svc.CreateSample(context.Background(), order)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if got := store.StockOf(item.ID); got != 10 {
		t.Errorf("stock must be untouched, got %d", got)
	}
	if n := store.SampleCount(); n != 0 {
		t.Errorf("no sample may exist, found %d", n)
	}
	if store.SequenceCount() != 0 {
		t.Error("no counter may be consumed")
	}
}

func TestCreateSample_UnknownTestAborts(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)

	order := baseOrder()
	order.Tests = []int64{42}

	_, err := svc.CreateSample(context.Background(), order)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n := store.SampleCount(); n != 0 {
		t.Errorf("no sample may exist, found %d", n)
	}
}

func TestCreateSample_SnapshotsTestCatalog(t *testing.T) {
	store := testutil.NewMemStore()
	cbc := store.AddTest(domain.LabTest{Name: "CBC", Price: 350})
	svc := newTestService(store)

	order := baseOrder()
	order.Tests = []int64{cbc.ID}
	order.TotalAmount = 350

	sample, err := svc.CreateSample(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sample.Tests) != 1 {
		t.Fatalf("expected 1 test line, got %d", len(sample.Tests))
	}
	line := sample.Tests[0]
	if line.TestRef != cbc.ID || line.Name != "CBC" || line.Price != 350 {
		t.Errorf("unexpected snapshot: %+v", line)
	}
}

func TestCreateSample_FinanceFailureDoesNotRollBack(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(10))
	store.FailFinance = true
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{{Item: item.ID, Quantity: 4}}

	sample, err := svc.CreateSample(context.Background(), order)
	if err != nil {
		t.Fatalf("intake must succeed despite ledger failure, got %v", err)
	}
	if got := store.StockOf(item.ID); got != 6 {
		t.Errorf("decrement must stay committed, got stock %d", got)
	}
	if _, err := store.GetSampleByNumber(context.Background(), sample.SampleNumber); err != nil {
		t.Errorf("sample must stay committed: %v", err)
	}
	if n := len(store.FinanceRecords()); n != 0 {
		t.Errorf("expected 0 records on ledger failure, got %d", n)
	}
}

func TestCreateSample_UnpaidPostsNoLedgerEntries(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(10))
	svc := newTestService(store)

	order := baseOrder()
	order.PaymentMethod = "credit"
	order.Consumables = []domain.ConsumableLineInput{{Item: item.ID, Quantity: 4}}

	sample, err := svc.CreateSample(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample.PaymentStatus != domain.PaymentNotPaid {
		t.Errorf("expected Not paid, got %s", sample.PaymentStatus)
	}
	if got := store.StockOf(item.ID); got != 6 {
		t.Errorf("stock must still be decremented, got %d", got)
	}
	if n := len(store.FinanceRecords()); n != 0 {
		t.Errorf("unpaid sample must not post ledger entries, got %d", n)
	}
}

func TestCreateSample_DuplicateNumberSurfacesConflict(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(10))
	store.FailCreateSample = domain.ErrDuplicateSampleNumber
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{{Item: item.ID, Quantity: 4}}

	_, err := svc.CreateSample(context.Background(), order)
	if !errors.Is(err, domain.ErrDuplicateSampleNumber) {
		t.Fatalf("expected duplicate sample number error, got %v", err)
	}
	if got := store.StockOf(item.ID); got != 10 {
		t.Errorf("stock must be untouched before persist, got %d", got)
	}
}

func TestCreateSample_PatientAllocatorFailureFailsIntake(t *testing.T) {
	store := testutil.NewMemStore()
	item := store.AddItem(syringeItem(10))
	store.FailSequenceKey = "patientId"
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{{Item: item.ID, Quantity: 4}}

	_, err := svc.CreateSample(context.Background(), order)
	if err == nil {
		t.Fatal("expected error when the patient id allocator is down")
	}
	if got := store.StockOf(item.ID); got != 10 {
		t.Errorf("stock must be untouched, got %d", got)
	}
	if n := store.SampleCount(); n != 0 {
		t.Errorf("no sample may exist, found %d", n)
	}
}

func TestCreateSample_CompensationRetriesTransientFailure(t *testing.T) {
	store := testutil.NewMemStore()
	itemA := store.AddItem(syringeItem(10))
	itemB := store.AddItem(domain.InventoryItem{Name: "Gloves", CurrentStock: 0})
	store.ReleaseFailures = 1
	svc := newTestService(store)

	order := baseOrder()
	order.Consumables = []domain.ConsumableLineInput{
		{Item: itemA.ID, Quantity: 2},
		{Item: itemB.ID, Quantity: 1},
	}

	_, err := svc.CreateSample(context.Background(), order)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if got := store.StockOf(itemA.ID); got != 10 {
		t.Errorf("retry must restore stock to 10, got %d", got)
	}
}

func TestCreateSample_SampleNumbersIncrease(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)

	first, err := svc.CreateSample(context.Background(), baseOrder())
	if err != nil {
		t.Fatalf("first intake: %v", err)
	}
	second := baseOrder()
	secondSample, err := svc.CreateSample(context.Background(), second)
	if err != nil {
		t.Fatalf("second intake: %v", err)
	}

	year := time.Now().UTC().Year()
	if first.SampleNumber != fmt.Sprintf("LAB-%d-1", year) {
		t.Errorf("unexpected first number %s", first.SampleNumber)
	}
	if secondSample.SampleNumber != fmt.Sprintf("LAB-%d-2", year) {
		t.Errorf("unexpected second number %s", secondSample.SampleNumber)
	}
}

func TestUpdateSampleStatus_Transitions(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)

	sample, err := svc.CreateSample(context.Background(), baseOrder())
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	updated, err := svc.UpdateSampleStatus(context.Background(), sample.ID, domain.SampleProcessing)
	if err != nil {
		t.Fatalf("collected -> processing: %v", err)
	}
	if updated.Status != domain.SampleProcessing {
		t.Errorf("expected processing, got %s", updated.Status)
	}

	if _, err := svc.UpdateSampleStatus(context.Background(), sample.ID, domain.SampleCollected); err == nil {
		t.Error("processing -> collected must be rejected")
	}

	if _, err := svc.UpdateSampleStatus(context.Background(), sample.ID, domain.SampleCompleted); err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	if _, err := svc.UpdateSampleStatus(context.Background(), sample.ID, domain.SampleProcessing); err == nil {
		t.Error("completed is terminal")
	}
}
