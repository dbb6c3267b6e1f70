package bamprovider

import (
	"sync"

	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record

	mu      sync.Mutex
	nActive int
}

type fakeIterator struct {
	provider *fakeProvider
	recs     []*sam.Record
	rec      *sam.Record

	refID, start, limit int
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and the subset of recs overlapping the requested range
// from NewOverlapIterator calls. recs must be coordinate sorted.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header: header, recs: recs}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive != 0 {
		panic("fakeProvider: iterators still active")
	}
	return nil
}

// NewOverlapIterator implements the Provider interface.
func (b *fakeProvider) NewOverlapIterator(ref *sam.Reference, start, limit int) Iterator {
	b.mu.Lock()
	b.nActive++
	b.mu.Unlock()
	return &fakeIterator{provider: b, recs: b.recs, refID: ref.ID(), start: start, limit: limit}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	i.provider.mu.Lock()
	i.provider.nActive--
	i.provider.mu.Unlock()
	return nil
}

func (i *fakeIterator) Scan() bool {
	for len(i.recs) > 0 {
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		if overlaps(i.rec, i.refID, i.start, i.limit) {
			return true
		}
	}
	return false
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}
