package bamprovider

import (
	"github.com/grailbio/hts/sam"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. If Index=="", it
	// defaults to path + ".bai".
	Index string
}

// Provider allows reading a coordinate-sorted alignment file from many
// goroutines at once. Thread safe.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewOverlapIterator returns an iterator over the records on ref whose
	// aligned interval overlaps the half-open, 0-based range [start, limit).
	// Records are yielded in file (coordinate) order.
	//
	// REQUIRES: Close has not been called.
	NewOverlapIterator(ref *sam.Reference, start, limit int) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewOverlapIterator have been
	// closed.
	Close() error
}

// Iterator iterates over sam.Records in a particular genomic range, in
// coordinate order. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Error().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// NewProvider creates a Provider for the BAM file at path.
func NewProvider(path string, optList ...ProviderOpts) *BAMProvider {
	p := &BAMProvider{Path: path}
	for _, o := range optList {
		if o.Index != "" {
			p.Index = o.Index
		}
	}
	return p
}

// overlaps reports whether r is aligned on refID and its aligned interval
// intersects [start, limit).
func overlaps(r *sam.Record, refID, start, limit int) bool {
	if r.Ref == nil || r.Ref.ID() != refID {
		return false
	}
	return r.Pos < limit && r.End() > start
}
