// Package bamprovider provides concurrent, position-indexed access to a
// coordinate-sorted BAM file.
//
// The Provider is an interface for fetching the reads that overlap a genomic
// range. BAMProvider implements it on top of a BAM file and its .bai index;
// NewFakeProvider serves in-memory records for tests.
package bamprovider
