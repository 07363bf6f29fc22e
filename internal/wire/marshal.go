package wire

import "google.golang.org/protobuf/encoding/protowire"

// Marshal/unmarshal methods below hand-encode each message against the
// field numbers fixed by api/console.proto, using the low-level varint/
// length-delimited primitives from google.golang.org/protobuf/encoding/
// protowire instead of protoc-generated bindings (see DESIGN.md).

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	return appendBytes(b, num, []byte(s))
}

func appendMsg(b []byte, num protowire.Number, payload []byte) []byte {
	if payload == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func appendID(b []byte, num protowire.Number, id Id) []byte {
	if id == 0 {
		return b
	}
	return appendMsg(b, num, (&idMsg{ID: id}).marshal())
}

type idMsg struct{ ID Id }

func (m *idMsg) marshal() []byte {
	return appendVarint(nil, 1, uint64(m.ID))
}

func (m *idMsg) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		if num == 1 {
			m.ID = Id(v)
		}
		return nil
	})
}

func decodeID(raw []byte) (Id, error) {
	var m idMsg
	if err := m.unmarshal(raw); err != nil {
		return 0, err
	}
	return m.ID, nil
}

// consumeFields walks a length-delimited message body, invoking handle for
// every field. Varint-typed fields pass their decoded value in v; bytes-typed
// fields (strings, submessages, repeated scalars encoded as bytes) pass their
// raw payload in raw. Anything else (fixed32/fixed64 — unused by this
// schema) is skipped, matching "unknown fields are ignored" (api/console.proto,
// SPEC_FULL.md §6.1).
func consumeFields(b []byte, handle func(num protowire.Number, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := handle(num, v, nil); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := handle(num, 0, v); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// --- Metadata ---

func (m *Metadata) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, m.ID)
	b = appendString(b, 2, m.Target)
	b = appendString(b, 3, m.Name)
	b = appendVarint(b, 4, uint64(m.Kind))
	b = appendString(b, 5, m.Level)
	b = appendString(b, 6, m.File)
	b = appendVarint(b, 7, uint64(m.Line))
	for _, fn := range m.FieldNames {
		b = appendString(b, 8, fn)
	}
	return b
}

func (m *Metadata) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			m.ID = v
		case 2:
			m.Target = string(raw)
		case 3:
			m.Name = string(raw)
		case 4:
			m.Kind = MetadataKind(v)
		case 5:
			m.Level = string(raw)
		case 6:
			m.File = string(raw)
		case 7:
			m.Line = uint32(v)
		case 8:
			m.FieldNames = append(m.FieldNames, string(raw))
		}
		return nil
	})
}

// --- Field ---

func (f *Field) marshal() []byte {
	var b []byte
	b = appendString(b, 1, f.Name)
	b = appendVarint(b, 2, uint64(f.MetadataID))
	switch f.Value.Kind {
	case FieldValueI64:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Value.I64))
	case FieldValueU64:
		b = appendVarint(b, 4, f.Value.U64)
	case FieldValueBool:
		b = appendBool(b, 5, f.Value.Bool)
	case FieldValueString:
		b = appendString(b, 6, f.Value.Str)
	case FieldValueDebug:
		b = appendString(b, 7, f.Value.Debug)
	}
	return b
}

func (f *Field) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			f.Name = string(raw)
		case 2:
			f.MetadataID = uint32(v)
		case 3:
			f.Value = FieldValue{Kind: FieldValueI64, I64: int64(v)}
		case 4:
			f.Value = FieldValue{Kind: FieldValueU64, U64: v}
		case 5:
			f.Value = FieldValue{Kind: FieldValueBool, Bool: v != 0}
		case 6:
			f.Value = FieldValue{Kind: FieldValueString, Str: string(raw)}
		case 7:
			f.Value = FieldValue{Kind: FieldValueDebug, Debug: string(raw)}
		}
		return nil
	})
}

// --- Histogram ---

func (h *Histogram) marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, h.SerializedHdrV2)
	b = appendVarint(b, 2, h.MaxValue)
	return b
}

func (h *Histogram) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			h.SerializedHdrV2 = append([]byte(nil), raw...)
		case 2:
			h.MaxValue = v
		}
		return nil
	})
}

func appendHistogram(b []byte, num protowire.Number, h *Histogram) []byte {
	if h == nil {
		return b
	}
	return appendMsg(b, num, h.marshal())
}

// --- NewTask ---

func (t *NewTask) marshal() []byte {
	var b []byte
	b = appendID(b, 1, t.ID)
	b = appendVarint(b, 2, t.MetadataID)
	b = appendID(b, 3, t.RuntimeTaskID)
	b = appendString(b, 4, t.Name)
	b = appendString(b, 5, t.SpawnLocation)
	for i := range t.Fields {
		b = appendMsg(b, 6, t.Fields[i].marshal())
	}
	b = appendVarint(b, 7, t.CreatedAt)
	return b
}

func (t *NewTask) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			t.ID = id
		case 2:
			t.MetadataID = v
		case 3:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			t.RuntimeTaskID = id
		case 4:
			t.Name = string(raw)
		case 5:
			t.SpawnLocation = string(raw)
		case 6:
			var f Field
			if err := f.unmarshal(raw); err != nil {
				return err
			}
			t.Fields = append(t.Fields, f)
		case 7:
			t.CreatedAt = v
		}
		return nil
	})
}

// --- TaskStatsUpdate ---

func (s *TaskStatsUpdate) marshal() []byte {
	var b []byte
	b = appendID(b, 1, s.ID)
	b = appendVarint(b, 2, s.Wakes)
	b = appendVarint(b, 3, s.WakerClones)
	b = appendVarint(b, 4, s.WakerDrops)
	b = appendVarint(b, 5, s.SelfWakes)
	b = appendVarint(b, 6, s.LastWake)
	b = appendVarint(b, 7, s.BusyTotal)
	b = appendVarint(b, 8, s.ScheduledTotal)
	b = appendVarint(b, 9, s.PollCount)
	b = appendVarint(b, 10, s.LastPollStarted)
	b = appendVarint(b, 11, s.LastPollEnded)
	b = appendHistogram(b, 12, s.PollTimes)
	b = appendHistogram(b, 13, s.ScheduledTimes)
	return b
}

func (s *TaskStatsUpdate) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			s.ID = id
		case 2:
			s.Wakes = v
		case 3:
			s.WakerClones = v
		case 4:
			s.WakerDrops = v
		case 5:
			s.SelfWakes = v
		case 6:
			s.LastWake = v
		case 7:
			s.BusyTotal = v
		case 8:
			s.ScheduledTotal = v
		case 9:
			s.PollCount = v
		case 10:
			s.LastPollStarted = v
		case 11:
			s.LastPollEnded = v
		case 12:
			h := &Histogram{}
			if err := h.unmarshal(raw); err != nil {
				return err
			}
			s.PollTimes = h
		case 13:
			h := &Histogram{}
			if err := h.unmarshal(raw); err != nil {
				return err
			}
			s.ScheduledTimes = h
		}
		return nil
	})
}

// --- TaskUpdate ---

func (u *TaskUpdate) marshal() []byte {
	var b []byte
	for i := range u.NewTasks {
		b = appendMsg(b, 1, u.NewTasks[i].marshal())
	}
	for i := range u.StatsUpdates {
		b = appendMsg(b, 2, u.StatsUpdates[i].marshal())
	}
	for _, id := range u.Dropped {
		b = appendID(b, 3, id)
	}
	return b
}

func (u *TaskUpdate) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			var t NewTask
			if err := t.unmarshal(raw); err != nil {
				return err
			}
			u.NewTasks = append(u.NewTasks, t)
		case 2:
			var s TaskStatsUpdate
			if err := s.unmarshal(raw); err != nil {
				return err
			}
			u.StatsUpdates = append(u.StatsUpdates, s)
		case 3:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			u.Dropped = append(u.Dropped, id)
		}
		return nil
	})
}

// --- NewResource ---

func (r *NewResource) marshal() []byte {
	var b []byte
	b = appendID(b, 1, r.ID)
	b = appendVarint(b, 2, r.MetadataID)
	b = appendID(b, 3, r.ParentResourceID)
	b = appendString(b, 4, r.Kind)
	b = appendString(b, 5, r.ConcreteType)
	b = appendString(b, 6, r.Visibility)
	b = appendString(b, 7, r.Location)
	for i := range r.Attributes {
		b = appendMsg(b, 8, r.Attributes[i].marshal())
	}
	b = appendVarint(b, 9, r.CreatedAt)
	return b
}

func (r *NewResource) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			r.ID = id
		case 2:
			r.MetadataID = v
		case 3:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			r.ParentResourceID = id
		case 4:
			r.Kind = string(raw)
		case 5:
			r.ConcreteType = string(raw)
		case 6:
			r.Visibility = string(raw)
		case 7:
			r.Location = string(raw)
		case 8:
			var f Field
			if err := f.unmarshal(raw); err != nil {
				return err
			}
			r.Attributes = append(r.Attributes, f)
		case 9:
			r.CreatedAt = v
		}
		return nil
	})
}

// --- ResourceStatsUpdate ---

func (s *ResourceStatsUpdate) marshal() []byte {
	var b []byte
	b = appendID(b, 1, s.ID)
	for i := range s.Attributes {
		b = appendMsg(b, 2, s.Attributes[i].marshal())
	}
	return b
}

func (s *ResourceStatsUpdate) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			s.ID = id
		case 2:
			var f Field
			if err := f.unmarshal(raw); err != nil {
				return err
			}
			s.Attributes = append(s.Attributes, f)
		}
		return nil
	})
}

// --- ResourceUpdate ---

func (u *ResourceUpdate) marshal() []byte {
	var b []byte
	for i := range u.NewResources {
		b = appendMsg(b, 1, u.NewResources[i].marshal())
	}
	for i := range u.StatsUpdates {
		b = appendMsg(b, 2, u.StatsUpdates[i].marshal())
	}
	for _, id := range u.Dropped {
		b = appendID(b, 3, id)
	}
	return b
}

func (u *ResourceUpdate) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			var r NewResource
			if err := r.unmarshal(raw); err != nil {
				return err
			}
			u.NewResources = append(u.NewResources, r)
		case 2:
			var s ResourceStatsUpdate
			if err := s.unmarshal(raw); err != nil {
				return err
			}
			u.StatsUpdates = append(u.StatsUpdates, s)
		case 3:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			u.Dropped = append(u.Dropped, id)
		}
		return nil
	})
}

// --- NewAsyncOp ---

func (a *NewAsyncOp) marshal() []byte {
	var b []byte
	b = appendID(b, 1, a.ID)
	b = appendVarint(b, 2, a.MetadataID)
	b = appendID(b, 3, a.ResourceID)
	b = appendID(b, 4, a.ParentAsyncOpID)
	b = appendString(b, 5, a.Source)
	b = appendID(b, 6, a.TaskID)
	for i := range a.Attributes {
		b = appendMsg(b, 7, a.Attributes[i].marshal())
	}
	b = appendVarint(b, 8, a.CreatedAt)
	return b
}

func (a *NewAsyncOp) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			a.ID = id
		case 2:
			a.MetadataID = v
		case 3:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			a.ResourceID = id
		case 4:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			a.ParentAsyncOpID = id
		case 5:
			a.Source = string(raw)
		case 6:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			a.TaskID = id
		case 7:
			var f Field
			if err := f.unmarshal(raw); err != nil {
				return err
			}
			a.Attributes = append(a.Attributes, f)
		case 8:
			a.CreatedAt = v
		}
		return nil
	})
}

// --- AsyncOpStatsUpdate ---

func (s *AsyncOpStatsUpdate) marshal() []byte {
	var b []byte
	b = appendID(b, 1, s.ID)
	b = appendVarint(b, 2, s.BusyTotal)
	b = appendVarint(b, 3, s.IdleTotal)
	b = appendVarint(b, 4, s.PollCount)
	b = appendID(b, 5, s.TaskID)
	return b
}

func (s *AsyncOpStatsUpdate) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			s.ID = id
		case 2:
			s.BusyTotal = v
		case 3:
			s.IdleTotal = v
		case 4:
			s.PollCount = v
		case 5:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			s.TaskID = id
		}
		return nil
	})
}

// --- PollOp ---

func (p *PollOp) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(p.Op))
	b = appendBool(b, 2, p.Ready)
	b = appendID(b, 3, p.TaskID)
	b = appendID(b, 4, p.ResourceID)
	b = appendID(b, 5, p.AsyncOpID)
	b = appendVarint(b, 6, p.At)
	return b
}

func (p *PollOp) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			p.Op = PollOpKind(v)
		case 2:
			p.Ready = v != 0
		case 3:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			p.TaskID = id
		case 4:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			p.ResourceID = id
		case 5:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			p.AsyncOpID = id
		case 6:
			p.At = v
		}
		return nil
	})
}

// --- AsyncOpUpdate ---

func (u *AsyncOpUpdate) marshal() []byte {
	var b []byte
	for i := range u.NewAsyncOps {
		b = appendMsg(b, 1, u.NewAsyncOps[i].marshal())
	}
	for i := range u.StatsUpdates {
		b = appendMsg(b, 2, u.StatsUpdates[i].marshal())
	}
	for i := range u.PollOps {
		b = appendMsg(b, 3, u.PollOps[i].marshal())
	}
	for _, id := range u.Dropped {
		b = appendID(b, 4, id)
	}
	return b
}

func (u *AsyncOpUpdate) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			var a NewAsyncOp
			if err := a.unmarshal(raw); err != nil {
				return err
			}
			u.NewAsyncOps = append(u.NewAsyncOps, a)
		case 2:
			var s AsyncOpStatsUpdate
			if err := s.unmarshal(raw); err != nil {
				return err
			}
			u.StatsUpdates = append(u.StatsUpdates, s)
		case 3:
			var p PollOp
			if err := p.unmarshal(raw); err != nil {
				return err
			}
			u.PollOps = append(u.PollOps, p)
		case 4:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			u.Dropped = append(u.Dropped, id)
		}
		return nil
	})
}

// --- Update ---

// Marshal encodes the Update as console.v1.Update wire bytes.
func (u *Update) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, u.Now)
	if u.TaskUpdate != nil {
		b = appendMsg(b, 2, u.TaskUpdate.marshal())
	}
	if u.ResourceUpdate != nil {
		b = appendMsg(b, 3, u.ResourceUpdate.marshal())
	}
	if u.AsyncOpUpdate != nil {
		b = appendMsg(b, 4, u.AsyncOpUpdate.marshal())
	}
	for i := range u.NewMetadata {
		b = appendMsg(b, 5, u.NewMetadata[i].marshal())
	}
	return b, nil
}

// Unmarshal decodes console.v1.Update wire bytes into u.
func (u *Update) Unmarshal(b []byte) error {
	*u = Update{}
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			u.Now = v
		case 2:
			tu := &TaskUpdate{}
			if err := tu.unmarshal(raw); err != nil {
				return err
			}
			u.TaskUpdate = tu
		case 3:
			ru := &ResourceUpdate{}
			if err := ru.unmarshal(raw); err != nil {
				return err
			}
			u.ResourceUpdate = ru
		case 4:
			au := &AsyncOpUpdate{}
			if err := au.unmarshal(raw); err != nil {
				return err
			}
			u.AsyncOpUpdate = au
		case 5:
			var m Metadata
			if err := m.unmarshal(raw); err != nil {
				return err
			}
			u.NewMetadata = append(u.NewMetadata, m)
		}
		return nil
	})
}

// --- TaskDetails ---

// Marshal encodes the TaskDetails as console.v1.TaskDetails wire bytes.
func (t *TaskDetails) Marshal() ([]byte, error) {
	var b []byte
	b = appendID(b, 1, t.TaskID)
	b = appendVarint(b, 2, t.Now)
	b = appendHistogram(b, 3, t.PollTimes)
	b = appendHistogram(b, 4, t.ScheduledTimes)
	return b, nil
}

// Unmarshal decodes console.v1.TaskDetails wire bytes into t.
func (t *TaskDetails) Unmarshal(b []byte) error {
	*t = TaskDetails{}
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case 1:
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			t.TaskID = id
		case 2:
			t.Now = v
		case 3:
			h := &Histogram{}
			if err := h.unmarshal(raw); err != nil {
				return err
			}
			t.PollTimes = h
		case 4:
			h := &Histogram{}
			if err := h.unmarshal(raw); err != nil {
				return err
			}
			t.ScheduledTimes = h
		}
		return nil
	})
}

// --- TaskDetailsRequest ---

// Marshal encodes the request as console.v1.TaskDetailsRequest wire bytes.
func (r *TaskDetailsRequest) Marshal() ([]byte, error) {
	return appendID(nil, 1, r.ID), nil
}

// Unmarshal decodes console.v1.TaskDetailsRequest wire bytes into r.
func (r *TaskDetailsRequest) Unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		if num == 1 {
			id, err := decodeID(raw)
			if err != nil {
				return err
			}
			r.ID = id
		}
		return nil
	})
}

// --- InstrumentState ---

// Marshal encodes the state as console.v1.InstrumentState wire bytes.
func (s *InstrumentState) Marshal() ([]byte, error) {
	return appendVarint(nil, 1, uint64(s.Temporality)), nil
}

// Unmarshal decodes console.v1.InstrumentState wire bytes into s.
func (s *InstrumentState) Unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		if num == 1 {
			s.Temporality = Temporality(v)
		}
		return nil
	})
}

// Empty is the shared wire shape for the parameterless unary requests and
// responses (WatchUpdatesRequest, PauseRequest/Response, ResumeRequest/
// Response, WatchStateRequest): zero-length messages.
type Empty struct{}

// Marshal encodes Empty as a zero-length message.
func (Empty) Marshal() ([]byte, error) { return nil, nil }

// Unmarshal accepts any bytes for Empty, ignoring unknown fields per
// api/console.proto's compatibility rule.
func (*Empty) Unmarshal([]byte) error { return nil }
