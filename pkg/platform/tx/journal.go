package tx

import "context"

type journalKey struct{}

// journal tracks the cells a transaction has written and the hooks to run
// after it commits. Undo steps run in reverse order.
type journal struct {
	undo    []func()
	publish []func()
	commit  []func()
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
	j.publish = nil
	j.commit = nil
}

// published makes the transaction's cell writes visible. It runs before the
// writer lock is released so the next writer clones the new state.
func (j *journal) published() {
	for _, fn := range j.publish {
		fn()
	}
	j.publish = nil
	j.undo = nil
}

func (j *journal) committed() {
	for _, fn := range j.commit {
		fn()
	}
	j.commit = nil
}

func journalFrom(ctx context.Context) (*journal, bool) {
	j, ok := ctx.Value(journalKey{}).(*journal)
	return j, ok
}

// AfterCommit registers fn to run once the outermost transaction in ctx has
// committed; it is dropped on rollback. Outside a transaction fn runs now.
func AfterCommit(ctx context.Context, fn func()) {
	if j, ok := journalFrom(ctx); ok {
		j.commit = append(j.commit, fn)
		return
	}
	fn()
}
