// Package search ranks indexed images and videos against text prompts,
// uploaded images and stored images.
//
// All vectors are unit length, so scoring is a plain dot product. MatchBatch
// applies the positive and negative thresholds; Service loads candidates
// from the store, ranks them and, for videos, reports the contiguous run of
// matching frames around the best one as a time segment.
package search
