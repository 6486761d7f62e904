package loader

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/pelletier/go-toml/v2"
)

// TOMLLoader reads one TOML file from a FileSystem.
type TOMLLoader struct {
	fsys FileSystem
	path string
}

// NewTOMLLoader returns a loader for path on fsys. A nil fsys reads from
// the operating system.
func NewTOMLLoader(fsys FileSystem, path string) *TOMLLoader {
	if fsys == nil {
		fsys = DefaultFS()
	}
	return &TOMLLoader{fsys: fsys, path: path}
}

// Load parses the file. A missing file yields nil, nil.
func (l *TOMLLoader) Load() (map[string]any, error) {
	data, err := l.fsys.ReadFile(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	return Parse(l.path, data)
}

// Parse decodes TOML data. source names the data in a *ParseError.
func Parse(source string, data []byte) (map[string]any, error) {
	out := make(map[string]any)
	err := toml.Unmarshal(data, &out)
	if err == nil {
		return out, nil
	}

	perr := &ParseError{Path: source, Message: err.Error(), Err: err}
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		perr.Line, perr.Column = derr.Position()
	}
	return nil, perr
}

// ParseError reports a TOML document that could not be decoded. Line and
// Column are zero when the decoder gave no position.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "config: parse: " + e.Message
	}
	where := e.Path
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", where, e.Line)
		if e.Column > 0 {
			where = fmt.Sprintf("%s:%d", where, e.Column)
		}
	}
	return fmt.Sprintf("config: parse %s: %s", where, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }
