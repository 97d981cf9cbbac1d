package remotecall

import (
	"errors"
	"io/fs"
	"os"
	"sync"
)

// CredentialLease owns a private key file fetched for a single request.
// Release is idempotent, never fails from the caller's perspective and
// removes any partially written file.
type CredentialLease struct {
	path    string
	once    sync.Once
	onError func(path string, err error)
}

// NewCredentialLease returns a lease over path. onError receives removal
// failures and may be nil.
func NewCredentialLease(path string, onError func(path string, err error)) *CredentialLease {
	return &CredentialLease{path: path, onError: onError}
}

// Path returns the local key path.
func (l *CredentialLease) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release removes the key file. Safe to call more than once and on a nil lease.
func (l *CredentialLease) Release() {
	if l == nil || l.path == "" {
		return
	}
	l.once.Do(func() {
		err := os.Remove(l.path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return
		}
		if l.onError != nil {
			l.onError(l.path, err)
		}
	})
}
