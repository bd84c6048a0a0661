package market

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/tabmarket/backend/internal/models"
)

// AuditLog is the append-only record of completed purchases. Sequence
// numbers start at 1 and increase by one per record.
type AuditLog struct {
	mu      sync.RWMutex
	records []models.AuditRecord
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append assigns the next sequence number and stores the record.
func (a *AuditLog) Append(rec models.AuditRecord) models.AuditRecord {
	a.mu.Lock()
	rec.Seq = a.nextSeqLocked()
	a.records = append(a.records, rec)
	a.mu.Unlock()

	return rec
}

// Query returns the records matching f in insertion order.
func (a *AuditLog) Query(f models.AuditFilter) []models.AuditRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := []models.AuditRecord{}
	for _, r := range a.records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (a *AuditLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// load replaces the log with records restored from the journal.
func (a *AuditLog) load(records []models.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, r := range records {
		if r.Seq != int64(i+1) {
			return fmt.Errorf("%w: record %d has seq %d", ErrSequenceOutOfOrder, i, r.Seq)
		}
	}
	a.records = append([]models.AuditRecord(nil), records...)
	return nil
}

// truncate drops the record with the given sequence number if it is the
// latest one. Only an uncommitted purchase may be undone this way.
func (a *AuditLog) truncate(seq int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.records); n > 0 && a.records[n-1].Seq == seq {
		a.records = a.records[:n-1]
	}
}

// publish writes the committed record to the process log.
func (a *AuditLog) publish(rec models.AuditRecord) {
	data, _ := json.Marshal(rec)
	log.Printf("AUDIT: %s", string(data))
}

func (a *AuditLog) nextSeqLocked() int64 {
	if n := len(a.records); n > 0 {
		return a.records[n-1].Seq + 1
	}
	return 1
}
