package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kanban-sync/domain"
)

// Store owns the authoritative board. Every read and mutation goes through it
// and each successful mutation advances the commit sequence.
type Store struct {
	epoch string
	order []string
	known map[string]struct{}

	mu      sync.RWMutex
	columns map[string][]domain.Task
	seq     uint64

	now   func() time.Time
	newID func() string
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how missing task ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore creates an empty board with the given columns.
func NewStore(columns []string, opts ...Option) (*Store, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("board needs at least one column")
	}
	s := &Store{
		epoch:   uuid.NewString(),
		known:   make(map[string]struct{}, len(columns)),
		columns: make(map[string][]domain.Task, len(columns)),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("column name cannot be empty")
		}
		if _, dup := s.known[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		s.known[c] = struct{}{}
		s.order = append(s.order, c)
		s.columns[c] = []domain.Task{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Epoch identifies this store instance. Sequence numbers are only comparable
// between snapshots of the same epoch.
func (s *Store) Epoch() string { return s.epoch }

// Columns returns the column names in display order.
func (s *Store) Columns() []string {
	return append([]string{}, s.order...)
}

// HasColumn reports whether name is one of the board's columns.
func (s *Store) HasColumn(name string) bool {
	_, ok := s.known[name]
	return ok
}

// Seq returns the sequence number of the last committed mutation.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Snapshot returns a self-consistent deep copy of the board.
func (s *Store) Snapshot() domain.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := domain.Board{Seq: s.seq, ColumnOrder: append([]string{}, s.order...), Columns: make(map[string][]domain.Task, len(s.columns))}
	for col, tasks := range s.columns {
		cp := make([]domain.Task, len(tasks))
		for i, t := range tasks {
			cp[i] = t.Clone()
		}
		b.Columns[col] = cp
	}
	return b
}

// ApplyCreate appends task to column, assigning an id and creation time when missing.
func (s *Store) ApplyCreate(column string, task domain.Task) (domain.Task, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.HasColumn(column) {
		return domain.Task{}, 0, fmt.Errorf("%w: %q", domain.ErrInvalidColumn, column)
	}
	t := task.Clone()
	if t.ID == "" {
		t.ID = s.newID()
	} else if _, _, ok := s.locateLocked(t.ID); ok {
		return domain.Task{}, 0, fmt.Errorf("%w: %s", domain.ErrDuplicateTask, t.ID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.UpdatedAt = nil
	t.Status = column

	s.columns[column] = append(s.columns[column], t)
	s.seq++
	return t.Clone(), s.seq, nil
}

// ApplyUpdate merges patch into the task with the given id wherever it lives.
func (s *Store) ApplyUpdate(id string, patch domain.TaskPatch) (domain.Task, string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, i, ok := s.locateLocked(id)
	if !ok {
		return domain.Task{}, "", 0, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	t := &s.columns[col][i]
	patch.Merge(t)
	s.touch(t)
	s.seq++
	return t.Clone(), col, s.seq, nil
}

// ApplyMove removes the task from `from` and appends it to `to`. Moving within
// the same column succeeds without repositioning the task.
func (s *Store) ApplyMove(id, from, to string) (domain.Task, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.HasColumn(from) {
		return domain.Task{}, 0, fmt.Errorf("%w: %q", domain.ErrInvalidColumn, from)
	}
	if !s.HasColumn(to) {
		return domain.Task{}, 0, fmt.Errorf("%w: %q", domain.ErrInvalidColumn, to)
	}
	src := s.columns[from]
	i := indexOf(src, id)
	if i < 0 {
		return domain.Task{}, 0, fmt.Errorf("%w: %s in %q", domain.ErrTaskNotFound, id, from)
	}
	if from == to {
		s.touch(&src[i])
		s.seq++
		return src[i].Clone(), s.seq, nil
	}

	t := src[i]
	s.columns[from] = append(src[:i:i], src[i+1:]...)
	t.Status = to
	s.touch(&t)
	s.columns[to] = append(s.columns[to], t)
	s.seq++
	return t.Clone(), s.seq, nil
}

// ApplyDelete removes the task from column and returns it.
func (s *Store) ApplyDelete(id, column string) (domain.Task, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.HasColumn(column) {
		return domain.Task{}, 0, fmt.Errorf("%w: %q", domain.ErrInvalidColumn, column)
	}
	tasks := s.columns[column]
	i := indexOf(tasks, id)
	if i < 0 {
		return domain.Task{}, 0, fmt.Errorf("%w: %s in %q", domain.ErrTaskNotFound, id, column)
	}
	t := tasks[i]
	s.columns[column] = append(tasks[:i:i], tasks[i+1:]...)
	s.seq++
	return t, s.seq, nil
}

// ApplyAttach appends an attachment reference to the task in column.
func (s *Store) ApplyAttach(id, column string, att domain.Attachment) (domain.Task, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.HasColumn(column) {
		return domain.Task{}, 0, fmt.Errorf("%w: %q", domain.ErrInvalidColumn, column)
	}
	i := indexOf(s.columns[column], id)
	if i < 0 {
		return domain.Task{}, 0, fmt.Errorf("%w: %s in %q", domain.ErrTaskNotFound, id, column)
	}
	t := &s.columns[column][i]
	t.Attachments = append(t.Attachments, att)
	s.touch(t)
	s.seq++
	return t.Clone(), s.seq, nil
}

func (s *Store) touch(t *domain.Task) {
	ts := s.now()
	t.UpdatedAt = &ts
}

func (s *Store) locateLocked(id string) (string, int, bool) {
	for _, col := range s.order {
		if i := indexOf(s.columns[col], id); i >= 0 {
			return col, i, true
		}
	}
	return "", -1, false
}

func indexOf(tasks []domain.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
