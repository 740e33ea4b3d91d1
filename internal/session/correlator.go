package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/xowhq/boothcore/internal/clock"
	"github.com/xowhq/boothcore/internal/errs"
	"github.com/xowhq/boothcore/internal/models"
)

// Correlator turns raw badge scans into ScanEvents timestamped against the
// session clock. Events are only appended, never removed; repeated scans of
// the same payload stay distinct (the backend de-duplicates by payload if
// it wants to).
type Correlator struct {
	clock *clock.Clock

	mu     sync.Mutex
	active *models.LocalSession
}

func NewCorrelator(clk *clock.Clock) *Correlator {
	return &Correlator{clock: clk}
}

// Bind attaches the correlator to the active session. Called by the
// controller on Begin.
func (c *Correlator) Bind(session *models.LocalSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = session
}

// Unbind detaches the correlator. Scans recorded afterwards fail with
// ErrNoActiveSession.
func (c *Correlator) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
}

// Record builds a ScanEvent from the clock's current elapsed seconds and
// frame counter and appends it to the active session's event list.
func (c *Correlator) Record(barcodeData, visitorName string) (models.ScanEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return models.ScanEvent{}, errs.ErrNoActiveSession
	}

	event := models.ScanEvent{
		ID:             uuid.New().String(),
		BarcodeData:    barcodeData,
		VisitorName:    visitorName,
		VideoTimestamp: c.clock.ElapsedSeconds(),
		FrameCode:      c.clock.Frame(),
	}
	c.active.Scans = append(c.active.Scans, event)
	return event, nil
}
