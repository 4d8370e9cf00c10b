// Package wall defines the React DevTools "Wall" wire protocol: the JSON
// envelope exchanged over WebSocket and the compact integer operations
// stream that describes component tree mutations.
//
// wall decodes, it does not interpret. Typed mutation ops are handed to
// consumers (the tree store) which own all tree semantics.
package wall

// Message is the envelope carried in every WebSocket text frame,
// in both directions.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Events sent by the daemon to runtime backends.
const (
	EventGetBridgeProtocol      = "getBridgeProtocol"
	EventGetBackendVersion      = "getBackendVersion"
	EventGetUnsupportedRenderer = "getIfHasUnsupportedRendererVersion"
	EventGetHookSettings        = "getHookSettings"
	EventGetProfilingStatus     = "getProfilingStatus"
	EventInspectElement         = "inspectElement"
	EventStartProfiling         = "startProfiling"
	EventStopProfiling          = "stopProfiling"
)

// Events received from runtime backends.
const (
	EventBackendInitialized = "backendInitialized"
	EventRenderer           = "renderer"
	EventRendererAttached   = "rendererAttached"
	EventOperations         = "operations"
	EventInspectedElement   = "inspectedElement"
	EventProfilingData      = "profilingData"
	EventShutdown           = "shutdown"
)

// ElementKind classifies a component node.
type ElementKind string

const (
	KindClass      ElementKind = "Class"
	KindFunction   ElementKind = "Function"
	KindHost       ElementKind = "Host"
	KindMemo       ElementKind = "Memo"
	KindForwardRef ElementKind = "ForwardRef"
	KindProfiler   ElementKind = "Profiler"
	KindSuspense   ElementKind = "Suspense"
	KindContext    ElementKind = "Context"
	KindRoot       ElementKind = "Root"
	KindOther      ElementKind = "Other"
)

// Wire codes for element kinds, as emitted by react-devtools-shared.
const (
	wireClass      = 1
	wireContext    = 2
	wireFunction   = 5
	wireForwardRef = 6
	wireHost       = 7
	wireMemo       = 8
	wireOther      = 9
	wireProfiler   = 10
	wireRoot       = 11
	wireSuspense   = 12
)

// KindFromWire maps a wire integer to an ElementKind. Unrecognised codes
// map to KindOther, matching the backend's forward-compat stance.
func KindFromWire(code int) ElementKind {
	switch code {
	case wireClass:
		return KindClass
	case wireContext:
		return KindContext
	case wireFunction:
		return KindFunction
	case wireForwardRef:
		return KindForwardRef
	case wireHost:
		return KindHost
	case wireMemo:
		return KindMemo
	case wireProfiler:
		return KindProfiler
	case wireRoot:
		return KindRoot
	case wireSuspense:
		return KindSuspense
	default:
		return KindOther
	}
}

// Opcodes of the operations stream.
const (
	opAdd                     = 1
	opRemove                  = 2
	opReorderChildren         = 3
	opUpdateTreeBaseDuration  = 4
	opUpdateErrorsOrWarnings  = 5
	opRemoveRoot              = 6
	opSetSubtreeMode          = 7
	opSuspenseAdd             = 8
	opSuspenseRemove          = 9
	opSuspenseReorderChildren = 10
	opSuspenseResize          = 11
	opSuspenseSuspenders      = 12
	opAppliedActivitySlice    = 13
)

// OpKind is the type of decoded tree mutation.
type OpKind string

const (
	OpAdd        OpKind = "add"
	OpAddRoot    OpKind = "add_root"
	OpRemove     OpKind = "remove"
	OpReorder    OpKind = "reorder"
	OpRemoveRoot OpKind = "remove_root"
)

// Op is a single decoded mutation. Fields are populated per Kind:
//
//	add:         ID, Element, ParentID, OwnerID, DisplayName, Key
//	add_root:    ID (the new root)
//	remove:      IDs
//	reorder:     ParentID, Children
//	remove_root: ID (the batch's root)
type Op struct {
	Kind        OpKind
	ID          uint32
	Element     ElementKind
	ParentID    uint32
	OwnerID     uint32
	DisplayName string
	Key         *string
	IDs         []uint32
	Children    []uint32
}

// Batch is one decoded operations payload.
type Batch struct {
	RendererID uint32
	RootID     uint32
	Ops        []Op
}
