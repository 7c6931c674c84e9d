package domain

import "fmt"

// Default column layout of a new board.
const (
	ColumnToDo       = "To Do"
	ColumnInProgress = "In Progress"
	ColumnDone       = "Done"
)

// DefaultColumns lists the columns of a board when none are configured.
func DefaultColumns() []string {
	return []string{ColumnToDo, ColumnInProgress, ColumnDone}
}

// Board is a point-in-time copy of every column and its tasks.
type Board struct {
	Seq         uint64            `json:"seq"`
	ColumnOrder []string          `json:"columnOrder"`
	Columns     map[string][]Task `json:"columns"`
}

// NewBoard returns an empty board with the given columns.
func NewBoard(columns []string) Board {
	b := Board{ColumnOrder: append([]string{}, columns...), Columns: make(map[string][]Task, len(columns))}
	for _, c := range columns {
		b.Columns[c] = []Task{}
	}
	return b
}

// Count returns the number of tasks across all columns.
func (b Board) Count() int {
	n := 0
	for _, tasks := range b.Columns {
		n += len(tasks)
	}
	return n
}

// Find locates a task by id and returns it along with its column.
func (b Board) Find(id string) (Task, string, bool) {
	for _, col := range b.ColumnOrder {
		for _, t := range b.Columns[col] {
			if t.ID == id {
				return t, col, true
			}
		}
	}
	return Task{}, "", false
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := Board{Seq: b.Seq, ColumnOrder: append([]string{}, b.ColumnOrder...), Columns: make(map[string][]Task, len(b.Columns))}
	for col, tasks := range b.Columns {
		cp := make([]Task, len(tasks))
		for i, t := range tasks {
			cp[i] = t.Clone()
		}
		out.Columns[col] = cp
	}
	return out
}

// Apply replays a change event onto a replica of the board. Events at or below
// the replica's sequence are ignored since the replica already reflects them.
func (b *Board) Apply(ev Event) error {
	if ev.Seq != 0 && ev.Seq <= b.Seq {
		return nil
	}
	switch ev.Type {
	case TaskCreated:
		if ev.Task == nil {
			return fmt.Errorf("%s event without task", ev.Type)
		}
		if _, ok := b.Columns[ev.Column]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidColumn, ev.Column)
		}
		b.Columns[ev.Column] = append(b.Columns[ev.Column], ev.Task.Clone())
	case TaskUpdated:
		if ev.Task == nil {
			return fmt.Errorf("%s event without task", ev.Type)
		}
		i := indexOf(b.Columns[ev.Column], ev.Task.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s in %q", ErrTaskNotFound, ev.Task.ID, ev.Column)
		}
		b.Columns[ev.Column][i] = ev.Task.Clone()
	case TaskMoved:
		if ev.FromColumn == ev.ToColumn {
			break
		}
		from := b.Columns[ev.FromColumn]
		i := indexOf(from, ev.TaskID)
		if i < 0 {
			return fmt.Errorf("%w: %s in %q", ErrTaskNotFound, ev.TaskID, ev.FromColumn)
		}
		if _, ok := b.Columns[ev.ToColumn]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidColumn, ev.ToColumn)
		}
		t := from[i]
		b.Columns[ev.FromColumn] = append(from[:i:i], from[i+1:]...)
		if ev.Task != nil {
			t = ev.Task.Clone()
		} else {
			t.Status = ev.ToColumn
		}
		b.Columns[ev.ToColumn] = append(b.Columns[ev.ToColumn], t)
	case TaskDeleted:
		tasks := b.Columns[ev.Column]
		i := indexOf(tasks, ev.TaskID)
		if i < 0 {
			return fmt.Errorf("%w: %s in %q", ErrTaskNotFound, ev.TaskID, ev.Column)
		}
		b.Columns[ev.Column] = append(tasks[:i:i], tasks[i+1:]...)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.Seq > b.Seq {
		b.Seq = ev.Seq
	}
	return nil
}

func indexOf(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
