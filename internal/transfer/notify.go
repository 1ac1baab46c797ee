package transfer

import (
	"sync"

	"github.com/google/uuid"
)

// NewTransferFunc is called when a read request for a file is received.
// transferID matches the follow-up progress and ended notifications.
type NewTransferFunc func(clientAddr, filename, transferID string)

// ProgressFunc is called as blocks are acknowledged.
type ProgressFunc func(transferID string, sentBytes, totalSize int64)

// EndedFunc is called when a transfer has ended; err is nil on success.
type EndedFunc func(transferID string, err error)

// Subscription bundles the notification callbacks one subscriber cares
// about. Unwanted callbacks stay nil.
type Subscription struct {
	NewTransfer NewTransferFunc
	Progress    ProgressFunc
	Ended       EndedFunc
}

// Notifier fans transfer status out to subscribers. Callbacks run on their
// own goroutines so a slow subscriber never stalls a transfer.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]Subscription
}

func newNotifier() *Notifier {
	return &Notifier{subs: make(map[string]Subscription)}
}

// Subscribe registers the callbacks and returns the id to unsubscribe with.
func (n *Notifier) Subscribe(sub Subscription) string {
	id := uuid.NewString()
	n.mu.Lock()
	n.subs[id] = sub
	n.mu.Unlock()
	return id
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
}

func (n *Notifier) snapshot() []Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	subs := make([]Subscription, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	return subs
}

func (n *Notifier) emitNewTransfer(clientAddr, filename, transferID string) {
	for _, s := range n.snapshot() {
		if s.NewTransfer != nil {
			go s.NewTransfer(clientAddr, filename, transferID)
		}
	}
}

func (n *Notifier) emitProgress(transferID string, sentBytes, totalSize int64) {
	for _, s := range n.snapshot() {
		if s.Progress != nil {
			go s.Progress(transferID, sentBytes, totalSize)
		}
	}
}

func (n *Notifier) emitEnded(transferID string, err error) {
	for _, s := range n.snapshot() {
		if s.Ended != nil {
			go s.Ended(transferID, err)
		}
	}
}
