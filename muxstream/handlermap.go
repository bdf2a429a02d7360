package muxstream

// EntryKind enumerates the handler map entry types of spec.md §4.8/§6.4.
type EntryKind int

const (
	KindStream EntryKind = iota // CodedByte or RawByte, selected by StreamFramer
	KindRPC
	KindMedia
	KindDirector // callback that returns one of the above at runtime
)

// Framer selects CodedByte vs RawByte for a KindStream entry.
type Framer int

const (
	FramerCodedByte Framer = iota
	FramerRawByte
)

// Entry is one per-label handler registration, per spec.md §6.4: "exactly
// one of {stream_handler, rpc_handler, media_handler, factory_closure}".
type Entry struct {
	Kind        EntryKind
	Framer      Framer
	OnOpen      func(label string) any // returns the constructed CodedByteStream/RawByteStream/RPCStream/etc.
	Director    func(label string) *Entry
}

// HandlerMap is the per-port label -> handler table of spec.md §4.8/§6.4.
type HandlerMap struct {
	entries  map[string]*Entry
	director *Entry
	raw      *Entry
}

// NewHandlerMap creates an empty HandlerMap.
func NewHandlerMap() *HandlerMap {
	return &HandlerMap{entries: make(map[string]*Entry)}
}

// Register binds label to entry. First match wins among explicit entries,
// per spec.md §4.8, so re-registering a label replaces its entry rather
// than stacking handlers.
func (m *HandlerMap) Register(label string, entry *Entry) {
	m.entries[label] = entry
}

// SetDirector installs the fallback director entry consulted when no
// explicit label matches.
func (m *HandlerMap) SetDirector(entry *Entry) { m.director = entry }

// SetRaw installs the single fallback raw handler, which receives every
// stream regardless of label when nothing else claims it.
func (m *HandlerMap) SetRaw(entry *Entry) { m.raw = entry }

// Resolve implements the dispatch order of spec.md §4.8: explicit entry,
// then director, then raw fallback, then rejection.
func (m *HandlerMap) Resolve(label string) (*Entry, bool) {
	if e, ok := m.entries[label]; ok {
		return e, true
	}
	if m.director != nil {
		if e := m.director.Director(label); e != nil {
			return e, true
		}
	}
	if m.raw != nil {
		return m.raw, true
	}
	return nil, false
}
