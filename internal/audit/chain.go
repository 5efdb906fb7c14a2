package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// GenesisChecksum seeds the chain of a subject's first entry.
const GenesisChecksum = ""

type canonicalEntry struct {
	Prev          string                        `json:"prev"`
	ID            string                        `json:"id"`
	ActionType    domain.AuditActionType        `json:"action_type"`
	Category      domain.AuditCategory          `json:"category"`
	ModelName     string                        `json:"model_name"`
	ObjectID      string                        `json:"object_id"`
	OldState      map[string]any                `json:"old_state"`
	NewState      map[string]any                `json:"new_state"`
	Changes       map[string]domain.FieldChange `json:"changes"`
	PerformedByID *string                       `json:"performed_by_id"`
	Reason        string                        `json:"reason"`
	IPAddress     *string                       `json:"ip_address"`
	Timestamp     string                        `json:"timestamp"`
}

// Checksum hashes the entry together with the previous checksum of the same
// subject. Sequence and ArchivedAt are excluded: the store assigns the first
// and retention sets the second after the fact.
func Checksum(prev string, log *domain.AuditLog) (string, error) {
	payload, err := json.Marshal(canonicalEntry{
		Prev:          prev,
		ID:            log.ID,
		ActionType:    log.ActionType,
		Category:      log.Category,
		ModelName:     log.ModelName,
		ObjectID:      log.ObjectID,
		OldState:      log.OldState,
		NewState:      log.NewState,
		Changes:       log.Changes,
		PerformedByID: log.PerformedByID,
		Reason:        log.Reason,
		IPAddress:     log.IPAddress,
		Timestamp:     log.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("audit: encode entry %s: %w", log.ID, err)
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// ChainError points at the first entry whose checksum does not match.
type ChainError struct {
	Index int
	ID    string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit: checksum mismatch at entry %d (%s)", e.Index, e.ID)
}

// VerifyChain recomputes the checksums of one subject's entries, oldest first.
func VerifyChain(logs []domain.AuditLog) error {
	prev := GenesisChecksum
	for i := range logs {
		sum, err := Checksum(prev, &logs[i])
		if err != nil {
			return err
		}
		if sum != logs[i].Checksum {
			return &ChainError{Index: i, ID: logs[i].ID}
		}
		prev = sum
	}
	return nil
}
