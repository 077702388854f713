package service

import (
	"context"
	"strings"
	"time"

	"labcore/internal/domain"
	"labcore/internal/repository"

	"github.com/rs/zerolog"
)

// Store is everything the service needs from persistence. Each method is
// individually atomic; nothing here assumes a transaction spanning entities,
// which is why intake runs as a compensated sequence.
type Store interface {
	NextSequence(ctx context.Context, key string) (int64, error)

	FindPatientByKey(ctx context.Context, cnic, phone *string) (*domain.Patient, error)
	CreatePatient(ctx context.Context, patient domain.Patient) (domain.Patient, error)
	GetPatientByPublicID(ctx context.Context, patientID string) (*domain.Patient, error)
	ListPatients(ctx context.Context, filter repository.PatientListFilter) ([]domain.Patient, error)

	DecrementStock(ctx context.Context, itemID int64, quantity int, reference string, lineIdx int) (*domain.InventoryItem, error)
	ReleaseStock(ctx context.Context, itemID int64, quantity int, reference string, lineIdx int) error
	Restock(ctx context.Context, itemID int64, quantity int) (*domain.InventoryItem, error)
	CreateItem(ctx context.Context, input repository.ItemCreateInput) (domain.InventoryItem, error)
	GetItemByID(ctx context.Context, id int64) (*domain.InventoryItem, error)
	ListItems(ctx context.Context, filter repository.ItemListFilter) ([]domain.InventoryItem, error)
	PatchItem(ctx context.Context, id int64, input repository.ItemPatchInput) (*domain.InventoryItem, error)
	GetInventorySummary(ctx context.Context) (repository.InventorySummary, error)
	ListMovements(ctx context.Context, itemID int64, limit int) ([]domain.StockMovement, error)

	CreateSample(ctx context.Context, sample domain.Sample) (domain.Sample, error)
	DeleteSample(ctx context.Context, id int64) error
	GetSampleByID(ctx context.Context, id int64) (*domain.Sample, error)
	GetSampleByNumber(ctx context.Context, sampleNumber string) (*domain.Sample, error)
	ListSamples(ctx context.Context, filter repository.SampleListFilter) ([]domain.Sample, error)
	UpdateSampleStatus(ctx context.Context, id int64, from, to domain.SampleStatus) error

	InsertFinanceRecord(ctx context.Context, record domain.FinanceRecord) (domain.FinanceRecord, error)
	ListFinanceRecords(ctx context.Context, filter repository.FinanceListFilter) ([]domain.FinanceRecord, error)
	GetDailyFinanceSummary(ctx context.Context, limit int) ([]domain.DailyFinanceSummary, error)

	CreateTest(ctx context.Context, input repository.TestCreateInput) (domain.LabTest, error)
	GetTestByID(ctx context.Context, id int64) (*domain.LabTest, error)
	ListTests(ctx context.Context, search string, limit, offset int) ([]domain.LabTest, error)
	LookupTests(ctx context.Context, ids []int64) ([]domain.LabTest, error)
	DeleteTest(ctx context.Context, id int64) error
}

type Service struct {
	store Store
	log   zerolog.Logger
}

func New(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]domain.Patient, error) {
	return s.store.ListPatients(ctx, repository.PatientListFilter{
		Search: search,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Service) GetPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	return s.store.GetPatientByPublicID(ctx, patientID)
}

func (s *Service) CreateItem(ctx context.Context, input repository.ItemCreateInput) (domain.InventoryItem, error) {
	return s.store.CreateItem(ctx, input)
}

func (s *Service) GetItem(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	return s.store.GetItemByID(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, filter repository.ItemListFilter) ([]domain.InventoryItem, error) {
	return s.store.ListItems(ctx, filter)
}

func (s *Service) PatchItem(ctx context.Context, id int64, input repository.ItemPatchInput) (*domain.InventoryItem, error) {
	return s.store.PatchItem(ctx, id, input)
}

func (s *Service) RestockItem(ctx context.Context, id int64, quantity int) (*domain.InventoryItem, error) {
	return s.store.Restock(ctx, id, quantity)
}

func (s *Service) InventorySummary(ctx context.Context) (repository.InventorySummary, error) {
	return s.store.GetInventorySummary(ctx)
}

func (s *Service) ListItemMovements(ctx context.Context, itemID int64, limit int) ([]domain.StockMovement, error) {
	if _, err := s.store.GetItemByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.ListMovements(ctx, itemID, limit)
}

func (s *Service) GetSample(ctx context.Context, id int64) (*domain.Sample, error) {
	return s.store.GetSampleByID(ctx, id)
}

func (s *Service) GetSampleByNumber(ctx context.Context, sampleNumber string) (*domain.Sample, error) {
	return s.store.GetSampleByNumber(ctx, sampleNumber)
}

func (s *Service) ListSamples(ctx context.Context, filter repository.SampleListFilter) ([]domain.Sample, error) {
	return s.store.ListSamples(ctx, filter)
}

// UpdateSampleStatus advances the sample lifecycle. The store update is
// conditional on the observed current status, so a concurrent transition
// loses cleanly instead of skipping a state.
func (s *Service) UpdateSampleStatus(ctx context.Context, id int64, next domain.SampleStatus) (*domain.Sample, error) {
	if !next.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: "unknown status " + string(next)}
	}
	sample, err := s.store.GetSampleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sample.Status.CanTransitionTo(next) {
		return nil, &domain.ValidationError{
			Field:  "status",
			Reason: "cannot move from " + string(sample.Status) + " to " + string(next),
		}
	}
	if err := s.store.UpdateSampleStatus(ctx, id, sample.Status, next); err != nil {
		return nil, err
	}
	return s.store.GetSampleByID(ctx, id)
}

func (s *Service) ListFinanceRecords(ctx context.Context, filter repository.FinanceListFilter) ([]domain.FinanceRecord, error) {
	return s.store.ListFinanceRecords(ctx, filter)
}

func (s *Service) DailyFinanceSummary(ctx context.Context, limit int) ([]domain.DailyFinanceSummary, error) {
	return s.store.GetDailyFinanceSummary(ctx, limit)
}

func (s *Service) CreateTest(ctx context.Context, input repository.TestCreateInput) (domain.LabTest, error) {
	return s.store.CreateTest(ctx, input)
}

func (s *Service) GetTest(ctx context.Context, id int64) (*domain.LabTest, error) {
	return s.store.GetTestByID(ctx, id)
}

func (s *Service) ListTests(ctx context.Context, search string, limit, offset int) ([]domain.LabTest, error) {
	return s.store.ListTests(ctx, search, limit, offset)
}

func (s *Service) DeleteTest(ctx context.Context, id int64) error {
	return s.store.DeleteTest(ctx, id)
}

func (s *Service) FinanceRecordsForSample(ctx context.Context, sampleNumber string) ([]domain.FinanceRecord, error) {
	return s.store.ListFinanceRecords(ctx, repository.FinanceListFilter{
		Reference: strings.TrimSpace(sampleNumber),
	})
}

// now is separated so intake tests can pin the clock.
var now = time.Now
