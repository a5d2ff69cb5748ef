package schema

import "strings"

// Structural paths of declarations inside a document.
const (
	PathEntities = "/entities/"
	PathMethods  = "/methods/"
)

// QName is the qualified name of a declaration: the file it lives in, the
// structural path inside the file and its dotted name.
type QName struct {
	File string
	Path string
	NS   string // all but the last dotted segment
	Name string // last dotted segment
	TLN  string // first dotted segment
}

// NewQName splits a dotted name.
func NewQName(file, path, name string) QName {
	parts := strings.Split(name, ".")
	return QName{
		File: file,
		Path: path,
		NS:   strings.Join(parts[:len(parts)-1], "."),
		Name: parts[len(parts)-1],
		TLN:  parts[0],
	}
}

// FullName is the dotted name.
func (q QName) FullName() string {
	if q.NS == "" {
		return q.Name
	}
	return q.NS + "." + q.Name
}

// UID is unique across every document of a run.
func (q QName) UID() string {
	return q.File + "#" + q.Path + q.FullName()
}

func (q QName) String() string { return q.UID() }

// DocumentSource looks documents up by path.
type DocumentSource interface {
	Get(path string) (*Document, error)
}

// Document returns the document that declares q.
func (q QName) Document(src DocumentSource) (*Document, error) {
	return src.Get(q.File)
}
