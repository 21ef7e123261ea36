package schemas

import "errors"

var (
	// ErrElementNotFound is returned when a query matches nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrWaitTimeout is returned when a wait predicate does not hold in time.
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrUnsupported is returned by sessions that cannot provide a primitive.
	ErrUnsupported = errors.New("operation not supported by session")
	// ErrNoWindow is returned when a window handle is unknown.
	ErrNoWindow = errors.New("no such window")
)

// QueryLang is the native selector language a query is expressed in.
type QueryLang int

const (
	QueryCSS QueryLang = iota
	QueryXPath
)

func (l QueryLang) String() string {
	if l == QueryXPath {
		return "xpath"
	}
	return "css"
}

// Query is a native element query produced by the locator resolver.
type Query struct {
	Lang QueryLang
	Expr string
}

// ElementState is the native readiness state a wait blocks on.
type ElementState int

const (
	// StateAttached holds once a matching node exists in the DOM.
	StateAttached ElementState = iota
	// StateVisible holds once a matching node is rendered with a box.
	StateVisible
	// StateHidden holds once no matching node is rendered.
	StateHidden
)

func (s ElementState) String() string {
	switch s {
	case StateVisible:
		return "visible"
	case StateHidden:
		return "hidden"
	default:
		return "attached"
	}
}

// WaitPredicate is a native wait produced by the locator resolver.
type WaitPredicate struct {
	Query     Query
	State     ElementState
	Condition WaitCondition
}

// PDFOptions controls paginated page capture.
type PDFOptions struct {
	Landscape       bool
	PrintBackground bool
}

// Element is an opaque handle to a node owned by a Session. Handles are only
// valid on the window they were found in.
type Element interface {
	TagName() string
}

// Element properties readable through Session.ReadProperty.
const (
	PropTextContent = "textContent"
	PropInnerHTML   = "innerHTML"
	PropOuterHTML   = "outerHTML"
)
