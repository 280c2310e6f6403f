package crds

import (
	"bytes"
	"errors"
	"sort"

	"github.com/mosaicnetworks/murmur/src/protocol"
)

// UniquePubkeyCapacity is the maximum number of distinct origins the table
// holds. Trimming evicts the least-recently-active origins above it.
const UniquePubkeyCapacity = 8192

var (
	// ErrOutdated is returned when an insert loses to an existing record
	// with the same label and a newer or equal wallclock.
	ErrOutdated = errors.New("crds: value is outdated")

	// ErrDuplicate is returned when an insert carries exactly the record the
	// table already holds.
	ErrDuplicate = errors.New("crds: duplicate value")

	// ErrUnknownLabel is returned by lookups for absent labels.
	ErrUnknownLabel = errors.New("crds: unknown label")
)

// VersionedValue is the stored form of a CRDS record, tagged with the hash of
// its wire encoding, the local insertion time, and the table-global cursor
// ordinal used by push scans.
type VersionedValue struct {
	Value      protocol.CrdsValue
	ValueHash  protocol.Hash
	InsertedAt uint64
	Cursor     uint64
}

type originRecord struct {
	numValues  int
	lastActive uint64
}

// InsertResults classifies the outcome of a batched insert by index into the
// input slice.
type InsertResults struct {
	Inserted []int
	Timeouts []int
	Failed   []int
}

// Table is the CRDS store. It is not internally synchronized.
type Table struct {
	myPubkey protocol.Pubkey

	values       map[protocol.CrdsLabel]*VersionedValue
	byCursor     map[uint64]protocol.CrdsLabel
	byOrigin     map[protocol.Pubkey]map[protocol.CrdsLabel]struct{}
	contactInfos map[protocol.Pubkey]protocol.CrdsLabel
	records      map[protocol.Pubkey]*originRecord

	cursor uint64

	// Purged collects the hashes of overwritten and evicted values so pull
	// filters keep covering them until they age out.
	Purged *HashTimeQueue
}

// NewTable returns an empty table owned by myPubkey. The owner's records are
// exempt from eviction.
func NewTable(myPubkey protocol.Pubkey) *Table {
	return &Table{
		myPubkey:     myPubkey,
		values:       make(map[protocol.CrdsLabel]*VersionedValue),
		byCursor:     make(map[uint64]protocol.CrdsLabel),
		byOrigin:     make(map[protocol.Pubkey]map[protocol.CrdsLabel]struct{}),
		contactInfos: make(map[protocol.Pubkey]protocol.CrdsLabel),
		records:      make(map[protocol.Pubkey]*originRecord),
		Purged:       NewHashTimeQueue(),
	}
}

// Len returns the number of stored values.
func (t *Table) Len() int {
	return len(t.values)
}

// NumOrigins returns the number of distinct origins.
func (t *Table) NumOrigins() int {
	return len(t.records)
}

// Insert stores value if it is newer than what the table holds under the same
// label. Wallclock ties break on the value hash, larger hash wins, so
// concurrent inserters converge on the same record.
func (t *Table) Insert(value protocol.CrdsValue, now uint64) error {
	hash, err := value.Hash()
	if err != nil {
		return err
	}
	return t.insertHashed(value, hash, now)
}

func (t *Table) insertHashed(value protocol.CrdsValue, hash protocol.Hash, now uint64) error {
	label := value.Label()

	existing, ok := t.values[label]
	if ok {
		if value.Wallclock() < existing.Value.Wallclock() {
			return ErrOutdated
		}
		if value.Wallclock() == existing.Value.Wallclock() {
			if hash == existing.ValueHash {
				return ErrDuplicate
			}
			if bytes.Compare(hash[:], existing.ValueHash[:]) < 0 {
				return ErrOutdated
			}
		}
		// the loser's hash goes to the purged list so pull filters still
		// cover it
		t.Purged.Push(existing.ValueHash, now)
		delete(t.byCursor, existing.Cursor)
	}

	vv := &VersionedValue{
		Value:      value,
		ValueHash:  hash,
		InsertedAt: now,
		Cursor:     t.cursor,
	}
	t.values[label] = vv
	t.byCursor[vv.Cursor] = label
	t.cursor++

	origin := value.ID()
	if _, ok := t.byOrigin[origin]; !ok {
		t.byOrigin[origin] = make(map[protocol.CrdsLabel]struct{})
	}
	t.byOrigin[origin][label] = struct{}{}

	rec, ok := t.records[origin]
	if !ok {
		rec = &originRecord{}
		t.records[origin] = rec
	}
	if existing == nil {
		rec.numValues++
	}
	rec.lastActive = now

	if value.Data.Kind == protocol.CrdsDataContactInfo {
		t.contactInfos[origin] = label
	}

	return nil
}

// InsertValues inserts a batch with a wallclock staleness window of
// timeoutMs around now. Values outside the window are classified as timeouts
// when recordTimeouts is set and as failures otherwise. When
// updateAllOriginTs is set, the batch refreshes the activity timestamp of
// every origin it mentions, not just those of inserted values.
func (t *Table) InsertValues(values []protocol.CrdsValue, now uint64, timeoutMs uint64, recordTimeouts bool, updateAllOriginTs bool) InsertResults {
	var res InsertResults

	for i := range values {
		wc := values[i].Wallclock()
		if wc+timeoutMs < now || wc > now+timeoutMs {
			if recordTimeouts {
				res.Timeouts = append(res.Timeouts, i)
			} else {
				res.Failed = append(res.Failed, i)
			}
			continue
		}
		if err := t.Insert(values[i], now); err != nil {
			res.Failed = append(res.Failed, i)
			continue
		}
		res.Inserted = append(res.Inserted, i)
	}

	if updateAllOriginTs {
		for i := range values {
			t.UpdateRecordTimestamp(values[i].ID(), now)
		}
	}

	return res
}

// Get returns the versioned value stored under label, or nil.
func (t *Table) Get(label protocol.CrdsLabel) *VersionedValue {
	return t.values[label]
}

// GetContactInfo returns the stored contact info of origin, or nil.
func (t *Table) GetContactInfo(origin protocol.Pubkey) *VersionedValue {
	label, ok := t.contactInfos[origin]
	if !ok {
		return nil
	}
	return t.values[label]
}

// GetContactInfos returns all stored contact infos, in unspecified order.
func (t *Table) GetContactInfos(buf []*VersionedValue) []*VersionedValue {
	buf = buf[:0]
	for _, label := range t.contactInfos {
		if v, ok := t.values[label]; ok {
			buf = append(buf, v)
		}
	}
	return buf
}

// GetEntriesWithCursor returns up to max values with ordinal >= *cursor, in
// cursor order, and advances *cursor past the last ordinal scanned: one past
// the last returned value when max is reached, the table's next ordinal
// otherwise. Ordinals of overwritten or removed values are skipped.
func (t *Table) GetEntriesWithCursor(buf []*VersionedValue, cursor *uint64, max int) []*VersionedValue {
	buf = buf[:0]
	c := *cursor
	for ; c < t.cursor && len(buf) < max; c++ {
		label, ok := t.byCursor[c]
		if !ok {
			continue
		}
		buf = append(buf, t.values[label])
	}
	*cursor = c
	return buf
}

// Entries returns all stored values in cursor order.
func (t *Table) Entries() []*VersionedValue {
	out := make([]*VersionedValue, 0, len(t.values))
	for _, v := range t.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cursor < out[j].Cursor })
	return out
}

// UpdateRecordTimestamp refreshes the activity timestamp of origin, both on
// the origin record used by trimming and on the stored contact info used by
// peer selection.
func (t *Table) UpdateRecordTimestamp(origin protocol.Pubkey, now uint64) {
	if rec, ok := t.records[origin]; ok {
		rec.lastActive = now
	}
	if label, ok := t.contactInfos[origin]; ok {
		if v, ok := t.values[label]; ok {
			v.InsertedAt = now
		}
	}
}

// AttemptTrim evicts the least-recently-active origins until at most capacity
// remain. The table owner's records are never evicted.
func (t *Table) AttemptTrim(capacity int) error {
	if len(t.records) <= capacity {
		return nil
	}

	type activity struct {
		origin     protocol.Pubkey
		lastActive uint64
	}
	candidates := make([]activity, 0, len(t.records))
	for origin, rec := range t.records {
		if origin == t.myPubkey {
			continue
		}
		candidates = append(candidates, activity{origin: origin, lastActive: rec.lastActive})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastActive < candidates[j].lastActive
	})

	excess := len(t.records) - capacity
	for i := 0; i < excess && i < len(candidates); i++ {
		t.removeOrigin(candidates[i].origin, candidates[i].lastActive)
	}
	return nil
}

// RemoveOldLabels drops values whose wallclock is older than now - timeoutMs.
// The owner's values are exempt: the node keeps republishing them itself.
func (t *Table) RemoveOldLabels(now uint64, timeoutMs uint64) error {
	var stale []protocol.CrdsLabel
	for label, v := range t.values {
		if label.Origin == t.myPubkey {
			continue
		}
		if v.Value.Wallclock()+timeoutMs < now {
			stale = append(stale, label)
		}
	}
	for _, label := range stale {
		t.removeLabel(label, now)
	}
	return nil
}

func (t *Table) removeOrigin(origin protocol.Pubkey, now uint64) {
	labels := t.byOrigin[origin]
	for label := range labels {
		t.removeLabel(label, now)
	}
}

func (t *Table) removeLabel(label protocol.CrdsLabel, now uint64) {
	v, ok := t.values[label]
	if !ok {
		return
	}

	t.Purged.Push(v.ValueHash, now)

	delete(t.values, label)
	delete(t.byCursor, v.Cursor)

	origin := label.Origin
	if labels, ok := t.byOrigin[origin]; ok {
		delete(labels, label)
		if len(labels) == 0 {
			delete(t.byOrigin, origin)
		}
	}
	if ciLabel, ok := t.contactInfos[origin]; ok && ciLabel == label {
		delete(t.contactInfos, origin)
	}
	if rec, ok := t.records[origin]; ok {
		rec.numValues--
		if rec.numValues <= 0 {
			delete(t.records, origin)
		}
	}
}
