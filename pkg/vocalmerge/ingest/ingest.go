// Package ingest turns an incoming multipart upload into a field map plus a
// recording persisted on disk, without buffering the body in memory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/himanishpuri/VocalMerge/pkg/utils"
)

const (
	RecordingField = "recordedAudio"

	DefaultMaxFileBytes  int64 = 200 << 20
	DefaultMaxFieldBytes int64 = 64 << 10
	DefaultMaxFields           = 32
)

var (
	ErrMalformed     = errors.New("malformed multipart body")
	ErrDuplicateFile = errors.New("more than one recording uploaded")
	ErrTooLarge      = errors.New("upload exceeds size limit")
)

// Recording is the uploaded vocal take after it was written to disk.
type Recording struct {
	FieldName string
	Filename  string
	MIMEType  string
	Path      string
	Size      int64
}

// Upload is the outcome of ingesting one request. Recording is nil when no
// file part with the recording field name was present.
type Upload struct {
	Fields    map[string]string
	Recording *Recording
}

func (u *Upload) Field(name string) string {
	if u == nil || u.Fields == nil {
		return ""
	}
	return u.Fields[name]
}

// Allocator hands out storage paths for persisted parts.
type Allocator interface {
	Path(name, ext string) string
}

// Ingestor consumes a request body and yields its upload.
type Ingestor interface {
	Ingest(ctx context.Context, r *http.Request, alloc Allocator) (*Upload, error)
}

type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// MultipartIngestor reads multipart/form-data part by part.
type MultipartIngestor struct {
	FileField     string
	MaxFileBytes  int64
	MaxFieldBytes int64
	MaxFields     int
	Logger        Logger
}

func NewMultipartIngestor(logger Logger) *MultipartIngestor {
	return &MultipartIngestor{
		FileField:     RecordingField,
		MaxFileBytes:  DefaultMaxFileBytes,
		MaxFieldBytes: DefaultMaxFieldBytes,
		MaxFields:     DefaultMaxFields,
		Logger:        logger,
	}
}

func (m *MultipartIngestor) Ingest(ctx context.Context, r *http.Request, alloc Allocator) (*Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	up := &Upload{Fields: make(map[string]string)}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return up, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		err = m.consume(part, up, alloc)
		part.Close()
		if err != nil {
			return nil, err
		}
	}
}

func (m *MultipartIngestor) consume(part *multipart.Part, up *Upload, alloc Allocator) error {
	name := part.FormName()
	if name == "" {
		_, err := io.Copy(io.Discard, part)
		return err
	}

	if part.FileName() == "" {
		if len(up.Fields) >= m.maxFields() {
			return fmt.Errorf("%w: too many fields", ErrTooLarge)
		}
		value, err := io.ReadAll(io.LimitReader(part, m.maxFieldBytes()+1))
		if err != nil {
			return fmt.Errorf("%w: reading field %s: %v", ErrMalformed, name, err)
		}
		if int64(len(value)) > m.maxFieldBytes() {
			return fmt.Errorf("%w: field %s", ErrTooLarge, name)
		}
		up.Fields[name] = string(value)
		return nil
	}

	if name != m.fileField() {
		m.warnf("ignoring unexpected file part %q (%s)", name, part.FileName())
		_, err := io.Copy(io.Discard, part)
		return err
	}
	if up.Recording != nil {
		return ErrDuplicateFile
	}

	rec := &Recording{
		FieldName: name,
		Filename:  part.FileName(),
		MIMEType:  part.Header.Get("Content-Type"),
		Path:      alloc.Path("recording", extensionFor(part.FileName())),
	}
	size, err := m.persist(part, rec.Path)
	if err != nil {
		return err
	}
	rec.Size = size
	up.Recording = rec

	m.debugf("recording %q persisted: %d bytes, type=%q", rec.Filename, rec.Size, rec.MIMEType)
	return nil
}

func (m *MultipartIngestor) persist(part io.Reader, path string) (int64, error) {
	f, err := createFile(path)
	if err != nil {
		return 0, err
	}
	limit := m.maxFileBytes()
	n, err := io.Copy(f, io.LimitReader(part, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		utils.RemoveIfExists(path)
		return 0, fmt.Errorf("%w: reading recording: %v", ErrMalformed, err)
	}
	if n > limit {
		utils.RemoveIfExists(path)
		return 0, fmt.Errorf("%w: recording larger than %d bytes", ErrTooLarge, limit)
	}
	return n, nil
}

var safeExt = regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`)

// extensionFor keeps a short alphanumeric extension from the client
// filename; ffprobe sniffs content anyway, the extension only helps humans.
func extensionFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if safeExt.MatchString(ext) {
		return ext
	}
	return ".bin"
}

func (m *MultipartIngestor) fileField() string {
	if m.FileField == "" {
		return RecordingField
	}
	return m.FileField
}

func (m *MultipartIngestor) maxFileBytes() int64 {
	if m.MaxFileBytes <= 0 {
		return DefaultMaxFileBytes
	}
	return m.MaxFileBytes
}

func (m *MultipartIngestor) maxFieldBytes() int64 {
	if m.MaxFieldBytes <= 0 {
		return DefaultMaxFieldBytes
	}
	return m.MaxFieldBytes
}

func (m *MultipartIngestor) maxFields() int {
	if m.MaxFields <= 0 {
		return DefaultMaxFields
	}
	return m.MaxFields
}

func (m *MultipartIngestor) debugf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Debugf(format, args...)
	}
}

func (m *MultipartIngestor) warnf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Warnf(format, args...)
	}
}
