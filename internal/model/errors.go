package model

import "errors"

// Kind classifies a pipeline failure. Each kind has a sentinel error below.
type Kind string

const (
	KindNone             Kind = ""
	KindMalformedPayload Kind = "MalformedPayload"
	KindMissingField     Kind = "MissingField"
	KindInvalidKey       Kind = "InvalidKey"
	KindUnknownTask      Kind = "UnknownTask"
	KindFetchError       Kind = "FetchError"
	KindLoadError        Kind = "LoadError"
	KindTransformError   Kind = "TransformError"
	KindUploadError      Kind = "UploadError"
	KindCleanupWarning   Kind = "CleanupWarning"
	KindUnclassified     Kind = "Unclassified"
)

// Ошибки пайплайна обработки задачи
var (
	ErrMalformedPayload error = errors.New("malformed payload")
	ErrMissingField     error = errors.New("missing field")
	ErrInvalidKey       error = errors.New("invalid key")
	ErrUnknownTask      error = errors.New("unknown task")
	ErrFetch            error = errors.New("fetch failed")
	ErrLoad             error = errors.New("load failed")
	ErrTransform        error = errors.New("transform failed")
	ErrUpload           error = errors.New("upload failed")
	ErrCleanupWarning   error = errors.New("cleanup warning") // не фатальная
)

var kindOrder = []struct {
	sentinel error
	kind     Kind
}{
	{ErrMalformedPayload, KindMalformedPayload},
	{ErrMissingField, KindMissingField},
	{ErrInvalidKey, KindInvalidKey},
	{ErrUnknownTask, KindUnknownTask},
	{ErrFetch, KindFetchError},
	{ErrLoad, KindLoadError},
	{ErrTransform, KindTransformError},
	{ErrUpload, KindUploadError},
	{ErrCleanupWarning, KindCleanupWarning},
}

// KindOf returns the kind of the first pipeline sentinel found in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, v := range kindOrder {
		if errors.Is(err, v.sentinel) {
			return v.kind
		}
	}
	return KindUnclassified
}

// Ошибки API/журнала задач
var (
	ErrCommon500      error = errors.New("something went wrong. Try again later")   // 500
	ErrIncorrectQuery error = errors.New("incorrect query parameters")              // 400
	ErrIncorrectID    error = errors.New("incorrect job UUID")                      // 400
	ErrJobNotFound    error = errors.New("specified job UUID doesn't exist")        // 404
	ErrJobInProgress  error = errors.New("job is being processed, try again later") // 409
	ErrEmptyPayload   error = errors.New("empty job payload provided")              // 400
)
