package strata

// WritePlan partitions an incoming record set into records to transmit and
// records preserved on the remote side.
type WritePlan struct {
	ToWrite []Record
	ToSkip  []Record
}

// planWrite applies the skip-existing-vs-overwrite policy. It is a pure
// function of the existing-key set, the incoming records, and the flag; the
// probe that produces existingKeys is a separate, composable step.
//
// With skipExisting false every incoming record is written and an existing
// value at the same key is fully replaced, so applying the same write twice
// leaves stored state identical to applying it once. With skipExisting true
// a record whose key is present in existingKeys is routed to ToSkip and never
// transmitted. A key outside the probed span is absent from existingKeys and
// therefore always written.
func planWrite(existingKeys map[RecordKey]struct{}, incoming []Record, skipExisting bool) WritePlan {
	if !skipExisting {
		return WritePlan{ToWrite: incoming}
	}
	plan := WritePlan{}
	for _, r := range incoming {
		if _, exists := existingKeys[r.Key()]; exists {
			plan.ToSkip = append(plan.ToSkip, r)
			continue
		}
		plan.ToWrite = append(plan.ToWrite, r)
	}
	return plan
}

// keySet folds records into their merge-identity set.
func keySet(records []Record) map[RecordKey]struct{} {
	keys := make(map[RecordKey]struct{}, len(records))
	for _, r := range records {
		keys[r.Key()] = struct{}{}
	}
	return keys
}
