package acquisition

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrItemNotFound = errors.New("item does not exist in the queue ledger")

// Ledger holds the volatile queue items. Implementations must be safe for
// concurrent use; callers receive and submit copies, never shared
// pointers into the ledger's own storage.
type Ledger interface {
	Put(item *Item) error
	Get(id uuid.UUID) (*Item, error)
	Update(item *Item) error
	Remove(id uuid.UUID) error
	List() ([]*Item, error)
}

// memoryLedger is the default process-local ledger. Queue state does not
// survive a restart, which is acceptable as the ledger is advisory.
type memoryLedger struct {
	mutex sync.RWMutex
	items map[uuid.UUID]*Item
}

func NewMemoryLedger() Ledger {
	return &memoryLedger{items: make(map[uuid.UUID]*Item)}
}

func (ledger *memoryLedger) Put(item *Item) error {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	clone := *item
	ledger.items[item.ID] = &clone
	return nil
}

func (ledger *memoryLedger) Get(id uuid.UUID) (*Item, error) {
	ledger.mutex.RLock()
	defer ledger.mutex.RUnlock()

	item, ok := ledger.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}

	clone := *item
	return &clone, nil
}

func (ledger *memoryLedger) Update(item *Item) error {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	if _, ok := ledger.items[item.ID]; !ok {
		return ErrItemNotFound
	}

	clone := *item
	ledger.items[item.ID] = &clone
	return nil
}

func (ledger *memoryLedger) Remove(id uuid.UUID) error {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	if _, ok := ledger.items[id]; !ok {
		return ErrItemNotFound
	}

	delete(ledger.items, id)
	return nil
}

func (ledger *memoryLedger) List() ([]*Item, error) {
	ledger.mutex.RLock()
	defer ledger.mutex.RUnlock()

	items := make([]*Item, 0, len(ledger.items))
	for _, item := range ledger.items {
		clone := *item
		items = append(items, &clone)
	}

	return items, nil
}
