package workspace

import "context"

// Confirmer asks the user whether a dirty document may be closed.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// Static answers.
var (
	AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) bool { return true })
	NeverConfirm  Confirmer = ConfirmFunc(func(context.Context, string) bool { return false })
)

// Answer returns a Confirmer that always says yes when confirmed is set and
// no otherwise.
func Answer(confirmed bool) Confirmer {
	if confirmed {
		return AlwaysConfirm
	}
	return NeverConfirm
}
