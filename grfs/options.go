package grfs

import (
	"github.com/sirupsen/logrus"

	"github.com/sdjil-gr/grfs/cache"
)

// Options configures how Mount and Mkfs open a Filesystem.
type Options struct {
	// CachePolicy selects write-back (default) or write-through sector
	// caching. See package cache for the tradeoff.
	CachePolicy cache.Policy
	// Log receives structured diagnostic output. A discard logger is used
	// if nil.
	Log *logrus.Entry
}

func (o Options) log() *logrus.Entry {
	if o.Log != nil {
		return o.Log
	}
	l := logrus.New()
	l.SetOutput(logrusDiscard{})
	return logrus.NewEntry(l)
}

type logrusDiscard struct{}

func (logrusDiscard) Write(p []byte) (int, error) { return len(p), nil }
