package rgw

import "regexp"

// MultipartUploadIDPrefix prefixes every multipart upload ID that RGW
// generates itself, as opposed to IDs supplied by S3 clients.
const MultipartUploadIDPrefix = "2~"

// multipartEntryPattern matches bucket index entries belonging to an
// in-progress multipart upload: _multipart_<name>.<upload id>.<meta|part>.
var multipartEntryPattern = regexp.MustCompile(
	`^_multipart_(.+)\.(` + MultipartUploadIDPrefix + `.+)\.(meta|\d+)$`,
)

// multipartPartPattern matches RADOS object names of multipart parts:
// <name>.<upload id>.<part>.
var multipartPartPattern = regexp.MustCompile(
	`^(.+)\.(` + MultipartUploadIDPrefix + `.+)\.(\d+)$`,
)

// MultipartEntry is a parsed bucket index entry of an in-progress multipart
// upload.
type MultipartEntry struct {
	ObjectName string
	UploadID   string
	Part       string // part number, or "meta" for the upload's meta entry
}

// IsMeta reports whether the entry is the upload's meta entry rather than an
// uploaded part.
func (e MultipartEntry) IsMeta() bool {
	return e.Part == "meta"
}

// ParseMultipartEntry reports whether the index entry name belongs to an
// in-progress multipart upload, and if so, returns its parsed form.
func ParseMultipartEntry(name string) (MultipartEntry, bool) {
	m := multipartEntryPattern.FindStringSubmatch(name)
	if m == nil {
		return MultipartEntry{}, false
	}
	return MultipartEntry{ObjectName: m[1], UploadID: m[2], Part: m[3]}, true
}

// UploadIDFromRadosName extracts the multipart upload ID from a RADOS object
// name, if the name is a multipart part.
func UploadIDFromRadosName(name string) (string, bool) {
	m := multipartPartPattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// IncompleteUpload groups the bucket index entries and RADOS objects of one
// in-progress multipart upload.
type IncompleteUpload struct {
	UploadID     string   `json:"-"`
	ObjectName   string   `json:"name"`
	Parts        []string `json:"parts"`
	RadosObjects []string `json:"rados_objects,omitempty"`
}

// UploadSet collects in-progress multipart uploads from a stream of bucket
// index entry names, keyed by upload ID.
type UploadSet struct {
	uploads map[string]*IncompleteUpload
	order   []string
}

func NewUploadSet() *UploadSet {
	return &UploadSet{uploads: map[string]*IncompleteUpload{}}
}

// AddIndexEntry records the index entry if it belongs to an in-progress
// multipart upload, and reports whether it did. Meta entries establish the
// upload; part entries are recorded as parts.
func (s *UploadSet) AddIndexEntry(name string) bool {
	entry, ok := ParseMultipartEntry(name)
	if !ok {
		return false
	}
	upload, ok := s.uploads[entry.UploadID]
	if !ok {
		// Parts starts non-nil so a meta-only upload serializes as an
		// empty list rather than null.
		upload = &IncompleteUpload{UploadID: entry.UploadID, ObjectName: entry.ObjectName, Parts: []string{}}
		s.uploads[entry.UploadID] = upload
		s.order = append(s.order, entry.UploadID)
	}
	if !entry.IsMeta() {
		upload.Parts = append(upload.Parts, name)
	}
	return true
}

// AttributeRadosObject records the RADOS object against the upload its name
// refers to, and reports whether the name matched a known upload.
func (s *UploadSet) AttributeRadosObject(radosName, manifestName string) bool {
	uploadID, ok := UploadIDFromRadosName(manifestName)
	if !ok {
		return false
	}
	upload, ok := s.uploads[uploadID]
	if !ok {
		return false
	}
	upload.RadosObjects = append(upload.RadosObjects, radosName)
	return true
}

// Uploads returns the collected uploads in first-seen order.
func (s *UploadSet) Uploads() []*IncompleteUpload {
	uploads := make([]*IncompleteUpload, 0, len(s.order))
	for _, id := range s.order {
		uploads = append(uploads, s.uploads[id])
	}
	return uploads
}

func (s *UploadSet) Len() int {
	return len(s.order)
}
