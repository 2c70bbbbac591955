package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/config"
	"hermannm.dev/summarytable/csv"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/summarytable/results"
	"hermannm.dev/summarytable/table"
	"hermannm.dev/summarytable/xlsx"
	"hermannm.dev/wrap"
)

var (
	ErrSlotDisabled     = errors.New("slot is disabled until the previous slot is filled")
	ErrDownloadDisabled = errors.New("download is disabled until a dimension is selected")
	ErrUnknownField     = errors.New("unknown field")
	ErrAlreadySelected  = errors.New("field is already selected in another slot")
)

// One user's summary table: the clause state, the filters, and the table, banner and loading flag
// that result from them. Methods are safe for concurrent use; UI events are applied one at a
// time, while fetches run outside the lock.
type Session struct {
	ID uuid.UUID

	registry   *registry.Registry
	summaryDB  db.SummaryDB
	normalizer results.Normalizer
	filters    *clauses.FilterStore

	queryTimeout   time.Duration
	bannerDuration time.Duration
	now            func() time.Time

	lock          sync.Mutex
	state         *clauses.State
	table         table.Table
	loading       bool
	banner        *Banner
	latestRequest fetchRequest
	lastActive    time.Time
}

func NewSession(
	config config.Config,
	fieldRegistry *registry.Registry,
	summaryDB db.SummaryDB,
) *Session {
	filters := clauses.NewFilterStore()

	session := &Session{
		ID:             uuid.New(),
		registry:       fieldRegistry,
		summaryDB:      summaryDB,
		normalizer:     results.NewNormalizer(fieldRegistry),
		filters:        filters,
		queryTimeout:   config.Query.Timeout,
		bannerDuration: config.Query.BannerDuration,
		now:            time.Now,
		state:          clauses.NewState(fieldRegistry, filters),
	}
	session.table = table.Empty(session.state.Clauses(), fieldRegistry)
	session.lastActive = session.now()
	return session
}

// Handles a selection made in one of the form controls. For the aggregate slot, value is the
// metric key chosen in the calculate-by control; for dimension slots, it is the field ID.
//
// On success, the table is reset to its headers and the summary is refetched. The returned error
// is only for invalid selections: fetch failures are reported through the view's banner.
func (session *Session) Select(
	ctx context.Context,
	channel clauses.Channel,
	slot clauses.Slot,
	value string,
) error {
	request, err := session.applySelection(channel, slot, value)
	if err != nil {
		return err
	}

	session.fetchAndApply(ctx, request)
	return nil
}

func (session *Session) applySelection(
	channel clauses.Channel,
	slot clauses.Slot,
	value string,
) (fetchRequest, error) {
	session.lock.Lock()
	defer session.lock.Unlock()

	if !slot.IsValid() {
		return fetchRequest{}, fmt.Errorf(
			"%w %d (must be between 0 and %d)", clauses.ErrInvalidSlot, slot, clauses.SlotCount-1,
		)
	}
	if channel == clauses.ChannelGroup && slot == clauses.AggregateSlot {
		return fetchRequest{}, clauses.ErrAggregateNotGroupable
	}
	if !session.isEnabled(slot) {
		return fetchRequest{}, fmt.Errorf("%w (slot %d)", ErrSlotDisabled, slot)
	}

	if slot == clauses.AggregateSlot {
		expression, err := session.state.ResolveAggregateSelection(value)
		if err != nil {
			return fetchRequest{}, err
		}
		value = expression
	} else {
		field := registry.FieldID(value)
		if !session.registry.HasField(field) {
			return fetchRequest{}, fmt.Errorf("%w '%s'", ErrUnknownField, value)
		}
		if chosenInOtherSlot(session.state.Clauses(), slot, field) {
			return fetchRequest{}, fmt.Errorf("%w: '%s'", ErrAlreadySelected, value)
		}
	}

	if err := session.state.Set(channel, slot, value); err != nil {
		return fetchRequest{}, wrap.Errorf(err, "failed to select '%s' in slot %d", value, slot)
	}

	return session.startRequest(), nil
}

// Handles removal of a selection. Returns the value the slot held, which becomes available in the
// option lists again (blank if the slot was already empty).
func (session *Session) Reset(
	ctx context.Context,
	channel clauses.Channel,
	slot clauses.Slot,
) (released string, err error) {
	released, request, err := session.applyReset(channel, slot)
	if err != nil {
		return "", err
	}

	session.fetchAndApply(ctx, request)
	return released, nil
}

func (session *Session) applyReset(
	channel clauses.Channel,
	slot clauses.Slot,
) (released string, request fetchRequest, err error) {
	session.lock.Lock()
	defer session.lock.Unlock()

	released, err = session.state.Clear(channel, slot)
	if err != nil {
		return "", fetchRequest{}, wrap.Errorf(err, "failed to reset slot %d", slot)
	}

	return released, session.startRequest(), nil
}

// Replaces the filters. Like in a form where filters live in a separate panel, the new filters
// apply from the next selection or reset, not immediately.
func (session *Session) SetFilters(filters clauses.FilterState) {
	session.filters.Replace(filters)

	session.lock.Lock()
	defer session.lock.Unlock()
	session.lastActive = session.now()
}

// Writes the current table as CSV.
func (session *Session) WriteCSV(output io.Writer, delimiter rune) error {
	currentTable, err := session.downloadableTable()
	if err != nil {
		return err
	}

	if err := csv.NewWriter(output, delimiter).WriteTable(currentTable); err != nil {
		return wrap.Error(err, "failed to write summary table as CSV")
	}
	return nil
}

// Writes the current table as an XLSX workbook.
func (session *Session) WriteXLSX(output io.Writer) error {
	currentTable, err := session.downloadableTable()
	if err != nil {
		return err
	}

	if err := xlsx.WriteTable(output, currentTable); err != nil {
		return wrap.Error(err, "failed to write summary table as spreadsheet")
	}
	return nil
}

func (session *Session) downloadableTable() (table.Table, error) {
	session.lock.Lock()
	defer session.lock.Unlock()

	if !session.state.HasDimensions() {
		return table.Table{}, ErrDownloadDisabled
	}
	session.lastActive = session.now()
	return session.table, nil
}

// Reports whether the session has been inactive for longer than the given duration.
func (session *Session) IdleFor(duration time.Duration) bool {
	session.lock.Lock()
	defer session.lock.Unlock()
	return session.now().Sub(session.lastActive) > duration
}

// Slots 1 and 2 need the slot before them, and the aggregate slot needs the first dimension.
// Must hold lock.
func (session *Session) isEnabled(slot clauses.Slot) bool {
	clauseSet := session.state.Clauses()

	switch {
	case slot == 0:
		return true
	case slot == clauses.AggregateSlot:
		return clauseSet.IsFilled(0)
	case slot.IsDimension():
		return clauseSet.IsFilled(slot - 1)
	default:
		return false
	}
}
