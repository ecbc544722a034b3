package lockmgr

// compatible reports whether a request for want can be granted while
// another owner holds held.
func compatible(held, want Mode) bool {
	switch want {
	case ModeShared:
		return held == ModeShared || held == ModeUpdate || held == ModeSharedReadCommitted
	case ModeSharedReadCommitted:
		return held == ModeShared || held == ModeUpdate || held == ModeSharedReadCommitted || held == ModeInsertPrevKey
	case ModeUpdate:
		// U is granted over existing readers but excludes other U/X
		return held == ModeShared || held == ModeSharedReadCommitted
	case ModeInsertPrevKey:
		// inserting into the gap after a row conflicts with anyone who
		// read or wrote that row in a repeatable way
		return held == ModeInsertPrevKey || held == ModeSharedReadCommitted
	case ModeExclusive, ModeTableExclusive:
		return false
	case ModeIntentShared:
		return held != ModeTableExclusive
	case ModeIntentExclusive:
		return held == ModeIntentShared || held == ModeIntentExclusive
	case ModeTableShared:
		return held == ModeIntentShared || held == ModeTableShared
	}
	return false
}

// strength orders modes for Holds; higher covers more.
func strength(m Mode) int {
	switch m {
	case ModeIntentShared:
		return 1
	case ModeSharedReadCommitted:
		return 2
	case ModeShared, ModeInsertPrevKey:
		return 3
	case ModeIntentExclusive:
		return 4
	case ModeTableShared:
		return 5
	case ModeUpdate:
		return 6
	case ModeExclusive, ModeTableExclusive:
		return 7
	}
	return 0
}
