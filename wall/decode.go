package wall

// DecodeState is the per-connection decoder state that survives across
// batches. The operations stream has two ADD shapes; the extended shape is
// detected by the presence of suspense opcodes (8..13) and, once seen on a
// connection, stays latched for its lifetime.
//
// Known limitation, mirrored from the reference backend: a batch carrying
// extended-shape ADDs before its first suspense opcode is misparsed. The
// wire format offers no way to tell the shapes apart earlier.
type DecodeState struct {
	ExtendedAdd bool
}

// reader walks a flat integer payload with bounds checking. A read past the
// end marks the reader truncated; decoding stops and whatever was decoded
// up to that point stands. Later batches are self-contained and realign.
type reader struct {
	ints      []int
	pos       int
	truncated bool
}

func (r *reader) remaining() int { return len(r.ints) - r.pos }

func (r *reader) next() int {
	if r.pos >= len(r.ints) {
		r.truncated = true
		return 0
	}
	v := r.ints[r.pos]
	r.pos++
	return v
}

// skip consumes n integers.
func (r *reader) skip(n int) {
	if n < 0 || r.pos+n > len(r.ints) {
		r.truncated = true
		r.pos = len(r.ints)
		return
	}
	r.pos += n
}

// skipRects consumes a rects payload: a count C, then 4·C values.
// C == -1 means no rects and nothing further.
func (r *reader) skipRects() {
	c := r.next()
	if r.truncated || c == -1 {
		return
	}
	r.skip(4 * c)
}

// DecodeBatch decodes one operations payload:
//
//	[rendererId, rootId, stringTableSize, …stringTable, …ops]
//
// It returns ErrMalformedBatch when the declared string table overruns the
// payload. Unknown opcodes advance the cursor by one integer and continue.
func DecodeBatch(ints []int, state *DecodeState) (*Batch, error) {
	if len(ints) < 3 {
		return nil, ErrMalformedBatch
	}

	batch := &Batch{
		RendererID: uint32(ints[0]),
		RootID:     uint32(ints[1]),
	}

	tableSize := ints[2]
	table, err := decodeStringTable(ints, 3, tableSize)
	if err != nil {
		return nil, err
	}

	r := &reader{ints: ints, pos: 3 + tableSize}
	for r.remaining() > 0 && !r.truncated {
		opcode := r.next()
		switch opcode {
		case opAdd:
			decodeAdd(r, table, state, batch)

		case opRemove:
			count := r.next()
			ids := make([]uint32, 0, max(count, 0))
			for i := 0; i < count; i++ {
				ids = append(ids, uint32(r.next()))
			}
			if !r.truncated {
				batch.Ops = append(batch.Ops, Op{Kind: OpRemove, IDs: ids})
			}

		case opReorderChildren:
			parentID := uint32(r.next())
			count := r.next()
			children := make([]uint32, 0, max(count, 0))
			for i := 0; i < count; i++ {
				children = append(children, uint32(r.next()))
			}
			if !r.truncated {
				batch.Ops = append(batch.Ops, Op{Kind: OpReorder, ParentID: parentID, Children: children})
			}

		case opUpdateTreeBaseDuration:
			r.skip(2) // id, scaled duration

		case opUpdateErrorsOrWarnings:
			r.skip(3) // id, numErrors, numWarnings

		case opRemoveRoot:
			batch.Ops = append(batch.Ops, Op{Kind: OpRemoveRoot, ID: batch.RootID})

		case opSetSubtreeMode:
			r.skip(2) // id, mode

		case opSuspenseAdd:
			state.ExtendedAdd = true
			r.skip(4) // fiberId, parentId, nameStrId, isSuspended
			r.skipRects()

		case opSuspenseRemove:
			state.ExtendedAdd = true
			count := r.next()
			r.skip(count)

		case opSuspenseReorderChildren:
			state.ExtendedAdd = true
			r.next() // parentId
			count := r.next()
			r.skip(count)

		case opSuspenseResize:
			state.ExtendedAdd = true
			r.next() // fiberId
			r.skipRects()

		case opSuspenseSuspenders:
			state.ExtendedAdd = true
			count := r.next()
			r.skip(4 * count)

		case opAppliedActivitySlice:
			state.ExtendedAdd = true
			r.skip(1) // id

		default:
			// Forward compat: unknown opcode advances by one integer.
			// Tolerates brief misalignment; later batches realign.
		}
	}

	return batch, nil
}

func decodeAdd(r *reader, table *stringTable, state *DecodeState, batch *Batch) {
	id := uint32(r.next())
	kind := KindFromWire(r.next())

	if kind == KindRoot {
		// Trailing payload is four capability flags instead of
		// parent/owner/name/key.
		r.skip(4)
		if !r.truncated {
			batch.Ops = append(batch.Ops, Op{Kind: OpAddRoot, ID: id})
		}
		return
	}

	parentID := uint32(r.next())
	ownerID := uint32(r.next())
	nameID := r.next()
	keyID := r.next()
	if state.ExtendedAdd {
		r.next() // namePropStrId; the display name string already carries it
	}
	if r.truncated {
		return
	}

	name, ok := table.get(nameID)
	if !ok || name == "" {
		if kind == KindHost {
			name = "HostComponent"
		} else {
			name = "Anonymous"
		}
	}

	var key *string
	if k, ok := table.get(keyID); ok {
		key = &k
	}

	batch.Ops = append(batch.Ops, Op{
		Kind:        OpAdd,
		ID:          id,
		Element:     kind,
		ParentID:    parentID,
		OwnerID:     ownerID,
		DisplayName: name,
		Key:         key,
	})
}
