package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"labcore/internal/domain"
	"labcore/internal/repository"
)

// MemStore is an in-memory Store. All methods serialize on one mutex, which
// matches the per-statement atomicity the SQL layer provides: the guarded
// decrement checks and mutates under the same lock.
type MemStore struct {
	mu sync.Mutex

	counters  map[string]int64
	patients  []domain.Patient
	items     map[int64]domain.InventoryItem
	samples   map[int64]domain.Sample
	finance   []domain.FinanceRecord
	labTests  map[int64]domain.LabTest
	movements []domain.StockMovement
	moveKeys  map[string]bool

	nextPatientRow int64
	nextItemID     int64
	nextSampleID   int64
	nextTestID     int64
	nextRecordID   int64

	FailSequenceKey  string
	FailFinance      bool
	FailCreateSample error
	ReleaseFailures  int
	DeleteFailures   int
}

func NewMemStore() *MemStore {
	return &MemStore{
		counters: map[string]int64{},
		items:    map[int64]domain.InventoryItem{},
		samples:  map[int64]domain.Sample{},
		labTests: map[int64]domain.LabTest{},
		moveKeys: map[string]bool{},
	}
}

func (f *MemStore) AddItem(item domain.InventoryItem) domain.InventoryItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextItemID++
	item.ID = f.nextItemID
	f.items[item.ID] = item
	return item
}

func (f *MemStore) AddTest(test domain.LabTest) domain.LabTest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTestID++
	test.ID = f.nextTestID
	f.labTests[test.ID] = test
	return test
}

func (f *MemStore) StockOf(itemID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[itemID].CurrentStock
}

func (f *MemStore) SampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func (f *MemStore) FinanceRecords() []domain.FinanceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.FinanceRecord, len(f.finance))
	copy(out, f.finance)
	return out
}

func (f *MemStore) NextSequence(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSequenceKey != "" && strings.HasPrefix(key, f.FailSequenceKey) {
		return 0, errors.New("counter unavailable")
	}
	f.counters[key]++
	return f.counters[key], nil
}

func (f *MemStore) FindPatientByKey(_ context.Context, cnic, phone *string) (*domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cnic != nil && strings.TrimSpace(*cnic) != "" {
		for _, p := range f.patients {
			if p.CNIC != nil && *p.CNIC == strings.TrimSpace(*cnic) {
				found := p
				return &found, nil
			}
		}
	}
	if phone != nil && strings.TrimSpace(*phone) != "" {
		for _, p := range f.patients {
			if p.Phone != nil && *p.Phone == strings.TrimSpace(*phone) {
				found := p
				return &found, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (f *MemStore) CreatePatient(_ context.Context, patient domain.Patient) (domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Same contract as the partial unique indexes on cnic and phone.
	for _, existing := range f.patients {
		if patient.CNIC != nil && existing.CNIC != nil && *existing.CNIC == *patient.CNIC {
			return domain.Patient{}, domain.ErrDuplicatePatientKey
		}
		if patient.Phone != nil && existing.Phone != nil && *existing.Phone == *patient.Phone {
			return domain.Patient{}, domain.ErrDuplicatePatientKey
		}
	}
	f.nextPatientRow++
	patient.ID = f.nextPatientRow
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = patient.CreatedAt
	f.patients = append(f.patients, patient)
	return patient, nil
}

func (f *MemStore) GetPatientByPublicID(_ context.Context, patientID string) (*domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.patients {
		if p.PatientID == patientID {
			found := p
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *MemStore) ListPatients(_ context.Context, _ repository.PatientListFilter) ([]domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Patient, len(f.patients))
	copy(out, f.patients)
	return out, nil
}

func movementKey(reference string, lineIdx int, direction domain.MovementDirection) string {
	return fmt.Sprintf("%s|%d|%s", reference, lineIdx, direction)
}

func (f *MemStore) DecrementStock(_ context.Context, itemID int64, quantity int, reference string, lineIdx int) (*domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return nil, &domain.ItemNotFoundError{ItemID: itemID}
	}
	if item.CurrentStock < quantity {
		return nil, &domain.InsufficientStockError{
			ItemID:    itemID,
			ItemName:  item.Name,
			Requested: quantity,
			Available: item.CurrentStock,
		}
	}
	item.CurrentStock -= quantity
	f.items[itemID] = item
	f.recordMovementLocked(itemID, reference, lineIdx, domain.MovementOut, quantity)
	return &item, nil
}

func (f *MemStore) ReleaseStock(_ context.Context, itemID int64, quantity int, reference string, lineIdx int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReleaseFailures > 0 {
		f.ReleaseFailures--
		return errors.New("storage unavailable")
	}
	key := movementKey(reference, lineIdx, domain.MovementIn)
	if reference != "" && f.moveKeys[key] {
		return nil
	}
	item, ok := f.items[itemID]
	if !ok {
		return nil
	}
	item.CurrentStock += quantity
	f.items[itemID] = item
	f.recordMovementLocked(itemID, reference, lineIdx, domain.MovementIn, quantity)
	return nil
}

func (f *MemStore) recordMovementLocked(itemID int64, reference string, lineIdx int, direction domain.MovementDirection, quantity int) {
	f.movements = append(f.movements, domain.StockMovement{
		ID:        int64(len(f.movements) + 1),
		ItemID:    itemID,
		Reference: reference,
		LineIdx:   lineIdx,
		Direction: direction,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	})
	if reference != "" {
		f.moveKeys[movementKey(reference, lineIdx, direction)] = true
	}
}

func (f *MemStore) Restock(_ context.Context, itemID int64, quantity int) (*domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	item.CurrentStock += quantity
	f.items[itemID] = item
	f.recordMovementLocked(itemID, "", 0, domain.MovementIn, quantity)
	return &item, nil
}

func (f *MemStore) CreateItem(_ context.Context, input repository.ItemCreateInput) (domain.InventoryItem, error) {
	return f.AddItem(domain.InventoryItem{
		Name:             input.Name,
		Unit:             input.Unit,
		CurrentStock:     input.CurrentStock,
		CostPerUnit:      input.CostPerUnit,
		SalePricePerUnit: input.SalePricePerUnit,
		SalePricePerPack: input.SalePricePerPack,
		ItemsPerPack:     input.ItemsPerPack,
		ReorderLevel:     input.ReorderLevel,
	}), nil
}

func (f *MemStore) GetItemByID(_ context.Context, id int64) (*domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (f *MemStore) ListItems(_ context.Context, _ repository.ItemListFilter) ([]domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]domain.InventoryItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.items[id])
	}
	return out, nil
}

func (f *MemStore) PatchItem(_ context.Context, id int64, input repository.ItemPatchInput) (*domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if input.Name != nil {
		item.Name = *input.Name
	}
	if input.CostPerUnit != nil {
		item.CostPerUnit = *input.CostPerUnit
	}
	if input.SalePricePerUnit != nil {
		item.SalePricePerUnit = *input.SalePricePerUnit
	}
	f.items[id] = item
	return &item, nil
}

func (f *MemStore) GetInventorySummary(_ context.Context) (repository.InventorySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var summary repository.InventorySummary
	for _, item := range f.items {
		summary.TotalItems++
		summary.TotalUnits += item.CurrentStock
		summary.InventoryValue += float64(item.CurrentStock) * item.CostPerUnit
	}
	return summary, nil
}

func (f *MemStore) ListMovements(_ context.Context, itemID int64, _ int) ([]domain.StockMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StockMovement, 0)
	for _, movement := range f.movements {
		if movement.ItemID == itemID {
			out = append(out, movement)
		}
	}
	return out, nil
}

func (f *MemStore) CreateSample(_ context.Context, sample domain.Sample) (domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateSample != nil {
		return domain.Sample{}, f.FailCreateSample
	}
	for _, existing := range f.samples {
		if existing.SampleNumber == sample.SampleNumber {
			return domain.Sample{}, domain.ErrDuplicateSampleNumber
		}
	}
	f.nextSampleID++
	sample.ID = f.nextSampleID
	sample.CreatedAt = time.Now()
	sample.UpdatedAt = sample.CreatedAt
	f.samples[sample.ID] = sample
	return sample, nil
}

func (f *MemStore) DeleteSample(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteFailures > 0 {
		f.DeleteFailures--
		return errors.New("storage unavailable")
	}
	delete(f.samples, id)
	return nil
}

func (f *MemStore) GetSampleByID(_ context.Context, id int64) (*domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sample, ok := f.samples[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &sample, nil
}

func (f *MemStore) GetSampleByNumber(_ context.Context, sampleNumber string) (*domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sample := range f.samples {
		if sample.SampleNumber == sampleNumber {
			found := sample
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *MemStore) ListSamples(_ context.Context, _ repository.SampleListFilter) ([]domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Sample, 0, len(f.samples))
	for _, sample := range f.samples {
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *MemStore) UpdateSampleStatus(_ context.Context, id int64, from, to domain.SampleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sample, ok := f.samples[id]
	if !ok {
		return domain.ErrNotFound
	}
	if sample.Status != from {
		return domain.ErrStatusConflict
	}
	sample.Status = to
	f.samples[id] = sample
	return nil
}

func (f *MemStore) InsertFinanceRecord(_ context.Context, record domain.FinanceRecord) (domain.FinanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailFinance {
		return domain.FinanceRecord{}, errors.New("ledger unavailable")
	}
	f.nextRecordID++
	record.ID = f.nextRecordID
	record.CreatedAt = time.Now()
	f.finance = append(f.finance, record)
	return record, nil
}

func (f *MemStore) ListFinanceRecords(_ context.Context, filter repository.FinanceListFilter) ([]domain.FinanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.FinanceRecord, 0)
	for _, record := range f.finance {
		if filter.Category != "" && record.Category != filter.Category {
			continue
		}
		if filter.Reference != "" && record.Reference != filter.Reference {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (f *MemStore) GetDailyFinanceSummary(_ context.Context, _ int) ([]domain.DailyFinanceSummary, error) {
	return nil, nil
}

func (f *MemStore) CreateTest(_ context.Context, input repository.TestCreateInput) (domain.LabTest, error) {
	return f.AddTest(domain.LabTest{Name: input.Name, Price: input.Price, Category: input.Category}), nil
}

func (f *MemStore) GetTestByID(_ context.Context, id int64) (*domain.LabTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	test, ok := f.labTests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &test, nil
}

func (f *MemStore) ListTests(_ context.Context, _ string, _, _ int) ([]domain.LabTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.labTests))
	for id := range f.labTests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]domain.LabTest, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.labTests[id])
	}
	return out, nil
}

func (f *MemStore) LookupTests(_ context.Context, ids []int64) ([]domain.LabTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LabTest, 0, len(ids))
	for _, id := range ids {
		test, ok := f.labTests[id]
		if !ok {
			return nil, &domain.ValidationError{Field: "tests", Reason: fmt.Sprintf("unknown test id %d", id)}
		}
		out = append(out, test)
	}
	return out, nil
}

func (f *MemStore) DeleteTest(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.labTests[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.labTests, id)
	return nil
}

// SequenceCount reports how many distinct counter keys have been consumed.
func (f *MemStore) SequenceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.counters)
}
