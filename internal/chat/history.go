package chat

// pair identifies one private log by its two participant keys,
// order-independent: the log for (a,b) and (b,a) is the same log. A struct
// key keeps participant recovery exact no matter what bytes the keys carry.
type pair struct {
	low, high string
}

func pairOf(a, b string) pair {
	if a > b {
		a, b = b, a
	}
	return pair{low: a, high: b}
}

// other returns the opposite participant, or false when key is not part of
// the pair.
func (p pair) other(key string) (string, bool) {
	switch key {
	case p.low:
		return p.high, true
	case p.high:
		return p.low, true
	default:
		return "", false
	}
}

// History is the append-only in-process message log: one shared broadcast
// log plus one log per unordered pair of identity keys. Nothing is ever
// removed for the life of the process. Like Registry it is unlocked; the
// engine owns serialization.
type History struct {
	broadcast []Message
	private   map[pair][]Message
}

// NewHistory builds an empty history store.
func NewHistory() *History {
	return &History{private: make(map[pair][]Message)}
}

// AppendBroadcast appends to the shared broadcast log.
func (h *History) AppendBroadcast(msg Message) {
	h.broadcast = append(h.broadcast, msg)
}

// AppendPrivate appends to the log for the unordered pair, creating it on
// first use.
func (h *History) AppendPrivate(keyA, keyB string, msg Message) {
	k := pairOf(keyA, keyB)
	h.private[k] = append(h.private[k], msg)
}

// For assembles the replay payload for one identity: the full broadcast log
// plus every private log the identity participates in, keyed by the other
// participant. Returned slices are copies, detached from future appends.
func (h *History) For(key string) HistoryPayload {
	payload := HistoryPayload{
		Broadcast: append([]Message(nil), h.broadcast...),
		Private:   make(map[string][]Message),
	}
	for pk, log := range h.private {
		other, ok := pk.other(key)
		if !ok {
			continue
		}
		payload.Private[other] = append([]Message(nil), log...)
	}
	return payload
}
