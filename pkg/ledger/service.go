package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/RitoIssei/bot-mng-ns/internal/event_bus"
	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	"github.com/RitoIssei/bot-mng-ns/pkg/normalizer"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Service is the budget ledger of one area. Only ErrInvalidAmount is returned as an error;
// storage failures are logged and reported as empty or false results.
type Service interface {
	Add(ctx context.Context, entry NewEntry) (string, error)
	AddBatch(ctx context.Context, entries []NewEntry) ([]string, error)
	UpdateStatus(ctx context.Context, budgetID string) int
	UpdateFields(ctx context.Context, id string, patch Patch) (bool, error)
	GetPendingByBudgetID(ctx context.Context, budgetID string) []Entry
	GetByID(ctx context.Context, id string) (Entry, bool)
	GetByBudgetID(ctx context.Context, budgetID string) (Entry, bool)
	Delete(ctx context.Context, budgetID string) int
	ListAll(ctx context.Context) []Entry
	ListBudgetIDs(ctx context.Context) []string
	SumByContractCode(ctx context.Context, team string, codes []string, from, to int64) map[string]int64
	SumByTeam(ctx context.Context, team string, from, to int64) int64
}

type ServiceImpl struct {
	repo     Repository
	eventBus *event_bus.EventBus
	clock    utils.Clock
	area     string
}

func NewLedgerService(repo Repository, eventBus *event_bus.EventBus, clock utils.Clock, area string) *ServiceImpl {
	return &ServiceImpl{repo: repo, eventBus: eventBus, clock: clock, area: area}
}

func (s *ServiceImpl) Area() string {
	return s.area
}

func (s *ServiceImpl) Add(ctx context.Context, newEntry NewEntry) (string, error) {
	entry, err := s.newEntry(newEntry)
	if err != nil {
		return "", err
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		log.Errorf("could not add ledger entry for %s: %v", entry.BudgetID, err)
		return "", nil
	}
	log.Infof("added ledger entry %s: %s %s %s %d (%s)", entry.ID, entry.BudgetID, entry.Team, entry.ContractCode, entry.Amount, entry.Status)
	s.publish(ctx, entry)
	return entry.ID, nil
}

// AddBatch stores every entry or none of them. Entries are announced only once the whole
// batch is stored, so a batch that fails halfway never reaches subscribers. A nil result
// without error means the store refused the batch.
func (s *ServiceImpl) AddBatch(ctx context.Context, newEntries []NewEntry) ([]string, error) {
	if len(newEntries) == 0 {
		return []string{}, nil
	}
	entries := make([]Entry, 0, len(newEntries))
	for _, newEntry := range newEntries {
		entry, err := s.newEntry(newEntry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	for i, entry := range entries {
		if err := s.repo.Insert(ctx, entry); err != nil {
			log.Errorf("could not add ledger entry for %s: %v", entry.BudgetID, err)
			s.discard(ctx, entries[:i])
			return nil, nil
		}
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		s.publish(ctx, entry)
		ids = append(ids, entry.ID)
	}
	log.Infof("added %d ledger entries for %s", len(entries), entries[0].BudgetID)
	return ids, nil
}

// discard removes rows of a batch that were stored but never announced.
func (s *ServiceImpl) discard(ctx context.Context, stored []Entry) {
	budgetIDs := make(map[string]struct{})
	for _, entry := range stored {
		budgetIDs[entry.BudgetID] = struct{}{}
	}
	for budgetID := range budgetIDs {
		if _, err := s.repo.DeleteByBudgetID(ctx, s.area, budgetID); err != nil {
			log.Errorf("could not discard partial budget %s: %v", budgetID, err)
		}
	}
}

func (s *ServiceImpl) newEntry(newEntry NewEntry) (Entry, error) {
	amount, err := ParseAmount(newEntry.Amount)
	if err != nil {
		log.Warnf("rejecting ledger entry for %s: %v", newEntry.BudgetID, err)
		return Entry{}, err
	}

	status := newEntry.Status
	if status == "" {
		status = StatusPending
	}
	if status != StatusPending && status != StatusRefund {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	timestamp := newEntry.Timestamp
	if timestamp == 0 {
		timestamp = s.clock.Now().Unix()
	}

	entry := Entry{
		ID:                   uuid.NewString(),
		BudgetID:             newEntry.BudgetID,
		Team:                 normalizer.Team(newEntry.Team),
		ContractCode:         newEntry.ContractCode,
		OriginalContractCode: newEntry.OriginalContractCode,
		Area:                 s.area,
		GroupName:            newEntry.GroupName,
		ChatID:               newEntry.ChatID,
		Amount:               amount,
		Status:               status,
		Timestamp:            timestamp,
		Assistant:            newEntry.Assistant,
		Note:                 newEntry.Note,
	}
	// Refunds never pass through pending, they are closed at their accounting time.
	if status == StatusRefund {
		entry.EndTime = timestamp
	}
	return entry, nil
}

func (s *ServiceImpl) UpdateStatus(ctx context.Context, budgetID string) int {
	updated, err := s.repo.MarkDone(ctx, s.area, budgetID, s.clock.Now().Unix())
	if err != nil {
		log.Errorf("could not complete budget %s: %v", budgetID, err)
		return 0
	}
	if len(updated) == 0 {
		log.Warnf("no pending entries to complete for budget %s", budgetID)
		return 0
	}
	for _, entry := range updated {
		s.publish(ctx, entry)
	}
	log.Infof("completed %d entries of budget %s", len(updated), budgetID)
	return len(updated)
}

func (s *ServiceImpl) UpdateFields(ctx context.Context, id string, patch Patch) (bool, error) {
	update := FieldUpdate{
		Team:         patch.Team,
		ContractCode: patch.ContractCode,
		GroupName:    patch.GroupName,
		Assistant:    patch.Assistant,
		Note:         patch.Note,
		Timestamp:    patch.Timestamp,
	}
	if patch.Amount != nil {
		amount, err := ParseAmount(patch.Amount)
		if err != nil {
			log.Warnf("rejecting update of ledger entry %s: %v", id, err)
			return false, err
		}
		update.Amount = &amount
	}
	if update.Team != nil {
		team := normalizer.Team(*update.Team)
		update.Team = &team
	}
	if update.empty() {
		return false, nil
	}

	entry, err := s.repo.UpdateFields(ctx, s.area, id, update)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			log.Warnf("ledger entry %s not found in area %s", id, s.area)
		} else {
			log.Errorf("could not update ledger entry %s: %v", id, err)
		}
		return false, nil
	}
	s.publish(ctx, entry)
	return true, nil
}

func (s *ServiceImpl) GetPendingByBudgetID(ctx context.Context, budgetID string) []Entry {
	entries, err := s.repo.FindPendingByBudgetID(ctx, s.area, budgetID)
	if err != nil {
		log.Errorf("could not load pending entries of budget %s: %v", budgetID, err)
		return []Entry{}
	}
	return entries
}

func (s *ServiceImpl) GetByID(ctx context.Context, id string) (Entry, bool) {
	entry, err := s.repo.FindByID(ctx, s.area, id)
	if err != nil {
		if !errors.Is(err, ErrEntryNotFound) {
			log.Errorf("could not load ledger entry %s: %v", id, err)
		}
		return Entry{}, false
	}
	return entry, true
}

// GetByBudgetID returns the first entry of the batch.
func (s *ServiceImpl) GetByBudgetID(ctx context.Context, budgetID string) (Entry, bool) {
	entries, err := s.repo.FindByBudgetID(ctx, s.area, budgetID)
	if err != nil {
		log.Errorf("could not load budget %s: %v", budgetID, err)
		return Entry{}, false
	}
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[0], true
}

// Delete removes every entry of the batch and announces the removal.
func (s *ServiceImpl) Delete(ctx context.Context, budgetID string) int {
	deleted, err := s.repo.DeleteByBudgetID(ctx, s.area, budgetID)
	if err != nil {
		log.Errorf("could not delete budget %s: %v", budgetID, err)
		return 0
	}
	if deleted == 0 {
		log.Warnf("budget %s not found in area %s", budgetID, s.area)
		return 0
	}
	log.Infof("deleted %d entries of budget %s in area %s", deleted, budgetID, s.area)
	s.publishDeletion(ctx, budgetID, deleted)
	return int(deleted)
}

func (s *ServiceImpl) ListAll(ctx context.Context) []Entry {
	entries, err := s.repo.FindAll(ctx, s.area)
	if err != nil {
		log.Errorf("could not list ledger entries: %v", err)
		return []Entry{}
	}
	return entries
}

func (s *ServiceImpl) ListBudgetIDs(ctx context.Context) []string {
	ids, err := s.repo.ListBudgetIDs(ctx, s.area)
	if err != nil {
		log.Errorf("could not list budget ids: %v", err)
		return []string{}
	}
	return ids
}

func (s *ServiceImpl) SumByContractCode(ctx context.Context, team string, codes []string, from, to int64) map[string]int64 {
	sums, err := s.repo.SumByContractCode(ctx, s.area, normalizer.Team(team), codes, from, to)
	if err != nil {
		log.Errorf("could not sum spend for %v: %v", codes, err)
		return map[string]int64{}
	}
	return sums
}

func (s *ServiceImpl) SumByTeam(ctx context.Context, team string, from, to int64) int64 {
	sum, err := s.repo.SumByTeam(ctx, s.area, normalizer.Team(team), from, to)
	if err != nil {
		log.Errorf("could not sum spend for team %s: %v", team, err)
		return 0
	}
	return sum
}

// publish hands the stored row to subscribers; a failing subscriber never undoes the write.
func (s *ServiceImpl) publish(ctx context.Context, entry Entry) {
	if s.eventBus == nil {
		return
	}
	event := event_bus.NewEvent(ctx, event_bus.LedgerEntryWritten, event_bus.ReplicationRecord{
		Kind:   RecordKind,
		Record: entry.Record(),
	})
	if err := s.eventBus.Publish(event); err != nil {
		log.Warnf("ledger entry %s written but not announced: %v", entry.ID, err)
	}
}

func (s *ServiceImpl) publishDeletion(ctx context.Context, budgetID string, deleted int64) {
	if s.eventBus == nil {
		return
	}
	event := event_bus.NewEvent(ctx, event_bus.LedgerBatchDeleted, event_bus.ReplicationRecord{
		Kind:   RecordKind,
		Record: DeletionRecord(s.area, budgetID, deleted),
	})
	if err := s.eventBus.Publish(event); err != nil {
		log.Warnf("budget %s deleted but not announced: %v", budgetID, err)
	}
}
