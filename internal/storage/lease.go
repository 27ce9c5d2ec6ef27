package storage

import "sync"

// Lease ties a file to the request or task that produced it. Release may be
// called from several exit paths; the file is deleted only once.
type Lease struct {
	path    string
	storage *FileStorage
	once    sync.Once
	err     error
}

// Path returns the leased file path.
func (l *Lease) Path() string {
	return l.path
}

// Release deletes the file on the first call and returns that call's result
// on every call.
func (l *Lease) Release() error {
	l.once.Do(func() {
		l.err = l.storage.Remove(l.path)
		if l.err == nil {
			l.storage.logger.Debug("deleted file", "path", l.path)
		}
	})
	return l.err
}
