package backend

import "gomultibridge/types"

// Match finds the record belonging to t, trying message hash, then message
// id, then submission index. It returns false when nothing matches.
func Match(t *types.OngoingTransfer, records []StatusRecord) (StatusRecord, bool) {
	c := t.Correlation
	if c.MessageHash != "" {
		for _, r := range records {
			if r.Correlation.MessageHash == c.MessageHash {
				return r, true
			}
		}
	}
	if c.MessageID != "" {
		for _, r := range records {
			if r.Correlation.MessageID == c.MessageID {
				return r, true
			}
		}
	}
	if c.SubmissionIndex != "" {
		for _, r := range records {
			if r.Correlation.SubmissionIndex == c.SubmissionIndex {
				return r, true
			}
		}
	}
	return StatusRecord{}, false
}
