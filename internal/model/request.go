package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// JobRequest is the validated form of a job payload. It is never modified after
// ValidateJobRequest returns it.
type JobRequest struct {
	Filename       string
	DefaultTask    string
	Sizes          []SizeEntry
	StorageOptions map[string]any
}

// SizeEntry is one requested variant. Task is the effective task: the size's own
// override or the request default.
type SizeEntry struct {
	Suffix string
	Task   string
	Params map[string]any
}

// CloneParams returns a copy of the params safe to hand to a transformation.
func (s SizeEntry) CloneParams() map[string]any {
	res := make(map[string]any, len(s.Params))
	maps.Copy(res, s.Params)
	return res
}

// TaskChecker reports whether a task name can be resolved.
type TaskChecker interface {
	Has(name string) bool
}

// Тексты ошибок валидации
const (
	msgNotObject        = "the payload must be a JSON object"
	msgNoFilename       = "you must provide a filename to process"
	msgNoTask           = "the data submitted must include a default task for the image manipulator"
	msgBadTask          = "the task %q is not a valid task for the manipulator"
	msgNoSizes          = "you must define at least one image size to process"
	msgSizeKey          = "size key must be a non-empty string"
	msgDuplicateSize    = "size key %q is defined more than once"
	msgSizeNotObject    = "size %q must be a JSON object"
	msgSizeTaskType     = "size %q: task must be a string"
	msgBadSizeTask      = "size %q: the task %q is not a valid task for the manipulator"
	msgOptionsNotObject = "storage_options must be a JSON object"
)

// ValidateJobRequest decodes raw and checks it against reg. The first failing rule
// determines the returned error. It performs no I/O and may be called repeatedly.
func ValidateJobRequest(raw []byte, reg TaskChecker) (*JobRequest, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, msgNotObject)
	}

	req := &JobRequest{}

	// filename
	filename, ok := stringField(top, "filename")
	if !ok || filename == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, msgNoFilename)
	}
	req.Filename = filename

	// дефолтная задача
	task, ok := stringField(top, "task")
	if !ok || task == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, msgNoTask)
	}
	if !reg.Has(task) {
		return nil, fmt.Errorf("%w: "+msgBadTask, ErrUnknownTask, task)
	}
	req.DefaultTask = task

	// размеры
	rawSizes, err := sizeEntries(top["sizes"])
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rawSizes))
	for _, v := range rawSizes {
		if v.key == "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidKey, msgSizeKey)
		}
		if seen[v.key] {
			return nil, fmt.Errorf("%w: "+msgDuplicateSize, ErrInvalidKey, v.key)
		}
		seen[v.key] = true
	}

	req.Sizes = make([]SizeEntry, 0, len(rawSizes))
	for _, v := range rawSizes {
		entry, err := decodeSize(v.key, v.value, task)
		if err != nil {
			return nil, err
		}
		req.Sizes = append(req.Sizes, entry)
	}

	// эффективные задачи проверяем после структуры
	for _, v := range req.Sizes {
		if !reg.Has(v.Task) {
			return nil, fmt.Errorf("%w: "+msgBadSizeTask, ErrUnknownTask, v.Suffix, v.Task)
		}
	}

	if opts, ok := top["storage_options"]; ok && !isNull(opts) {
		if err := json.Unmarshal(opts, &req.StorageOptions); err != nil || req.StorageOptions == nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, msgOptionsNotObject)
		}
	}

	return req, nil
}

func stringField(top map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := top[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type rawSize struct {
	key   string
	value json.RawMessage
}

// sizeEntries reads the sizes object keeping the declared key order and duplicates.
func sizeEntries(raw json.RawMessage) ([]rawSize, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, msgNoSizes)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, msgNotObject)
	}

	switch tok {
	case json.Delim('{'):
	case json.Delim('['):
		// список вместо объекта: ключи не строковые
		if !dec.More() {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, msgNoSizes)
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, msgSizeKey)
	default:
		return nil, fmt.Errorf("%w: sizes must be a JSON object", ErrMalformedPayload)
	}

	var res []rawSize
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		key, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		res = append(res, rawSize{key: key, value: value})
	}

	if len(res) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, msgNoSizes)
	}
	return res, nil
}

func decodeSize(suffix string, raw json.RawMessage, defaultTask string) (SizeEntry, error) {
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil || params == nil {
		return SizeEntry{}, fmt.Errorf("%w: "+msgSizeNotObject, ErrMalformedPayload, suffix)
	}

	entry := SizeEntry{Suffix: suffix, Task: defaultTask}
	// task внутри размера - это переопределение, а не параметр
	if override, ok := params["task"]; ok {
		name, isString := override.(string)
		if !isString {
			return SizeEntry{}, fmt.Errorf("%w: "+msgSizeTaskType, ErrMalformedPayload, suffix)
		}
		if name != "" {
			entry.Task = name
		}
		delete(params, "task")
	}
	entry.Params = params

	return entry, nil
}

//--------------------

// StorageOptions are per-job overrides applied by the storage gateway.
type StorageOptions struct {
	Bucket       string
	CacheControl string
	StorageClass string
}

// ParseStorageOptions maps setter-style option names onto StorageOptions.
// "setBucket", "Bucket" and "bucket" address the same option.
func ParseStorageOptions(raw map[string]any) (StorageOptions, error) {
	var res StorageOptions
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		value, ok := raw[name].(string)
		if !ok {
			return StorageOptions{}, fmt.Errorf("%w: storage option %q must be a string", ErrFetch, name)
		}

		switch normalizeSetter(name) {
		case "bucket":
			res.Bucket = value
		case "cachecontrol":
			res.CacheControl = value
		case "storageclass":
			res.StorageClass = value
		default:
			return StorageOptions{}, fmt.Errorf("%w: unknown storage option %q", ErrFetch, name)
		}
	}
	return res, nil
}

func normalizeSetter(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "")
	if len(n) > 3 && strings.HasPrefix(n, "set") {
		n = n[3:]
	}
	return n
}
