package feed

// State is the lifecycle of a feed.
//
//	Empty -> Loading -> Loaded
//	Loaded -> LoadingMore -> Loaded
//	any load failure -> Error, a retry re-enters Loading or LoadingMore
//
// Exhausted is Loaded with no further pages.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateLoadingMore
	StateLoaded
	StateExhausted
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateLoadingMore:
		return "loading_more"
	case StateLoaded:
		return "loaded"
	case StateExhausted:
		return "exhausted"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
