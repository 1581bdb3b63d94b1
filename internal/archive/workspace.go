package archive

import (
	"fmt"
	"os"
)

type WorkspaceError struct {
	Dir string
	Err error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("failed to reset workspace %s: %v", e.Dir, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// Workspace is the scratch directory that holds one batch of extracted
// rasters at a time.
type Workspace struct {
	Dir    string
	resets int
}

func NewWorkspace(dir string) *Workspace {
	return &Workspace{Dir: dir}
}

// Reset removes everything under Dir and recreates it empty.
func (w *Workspace) Reset() error {
	w.resets++
	if err := os.RemoveAll(w.Dir); err != nil {
		return &WorkspaceError{Dir: w.Dir, Err: err}
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return &WorkspaceError{Dir: w.Dir, Err: err}
	}
	return nil
}

// Resets reports how many times Reset has been called.
func (w *Workspace) Resets() int {
	return w.resets
}

// Scoped runs fn against a freshly wiped workspace and wipes it again on
// every way out of fn, panics included.
func (w *Workspace) Scoped(fn func(dir string)) (err error) {
	if err := w.Reset(); err != nil {
		return err
	}
	defer func() {
		if resetErr := w.Reset(); resetErr != nil && err == nil {
			err = resetErr
		}
	}()
	fn(w.Dir)
	return nil
}
