/*Package interval implements interval-union operations in a manner optimized
  for sets of genomic coordinates represented by BED files or samtools-style
  region strings.
  (Note the 'union'.  Overlapping intervals are merged, not tracked
  separately.)
  It assumes every position fits in a PosType, which is currently defined as
  int32 since that's what BAM files are limited to.
*/
package interval
