package model

// StreakBucket is the fixed ordered partition of loss streak lengths.
// Boundaries are inclusive on the lower edge and exclusive on the upper
// edge of each named range; published aggregates depend on this exact
// partition staying stable.
type StreakBucket string

// Loss streak buckets, in order.
const (
	BucketZero    StreakBucket = "0"
	BucketShort   StreakBucket = "1-2"
	BucketMid     StreakBucket = "3-5"
	BucketLong    StreakBucket = "6-10"
	BucketExtreme StreakBucket = "10+"
)

// Buckets returns all buckets in display order.
func Buckets() []StreakBucket {
	return []StreakBucket{BucketZero, BucketShort, BucketMid, BucketLong, BucketExtreme}
}

// BucketFor maps a loss streak length onto its bucket.
func BucketFor(streak int) StreakBucket {
	switch {
	case streak == 0:
		return BucketZero
	case streak <= 2:
		return BucketShort
	case streak <= 5:
		return BucketMid
	case streak <= 10:
		return BucketLong
	default:
		return BucketExtreme
	}
}
