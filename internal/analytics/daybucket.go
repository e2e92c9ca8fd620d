package analytics

// DayBucket counts the sessions of each type logged on one calendar day.
type DayBucket struct {
	Swim int
	Run  int
}

// Total returns the number of sessions of either type.
func (b DayBucket) Total() int {
	return b.Swim + b.Run
}

// BucketByDay groups sessions by their YYYY-MM-DD key. Days without sessions
// have no entry. Undated sessions are left out and counted in skipped.
func BucketByDay(sessions []Session) (buckets map[string]DayBucket, skipped int) {
	buckets = make(map[string]DayBucket)
	for _, s := range sessions {
		if !s.Dated {
			skipped++
			continue
		}
		key := s.Key()
		b := buckets[key]
		if s.Type == TypeRun {
			b.Run++
		} else {
			b.Swim++
		}
		buckets[key] = b
	}
	return buckets, skipped
}
