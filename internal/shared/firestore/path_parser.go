package firestore

import (
	"fmt"
	"regexp"
	"strings"

	"firestore-typed/internal/shared/errors"

	"github.com/google/uuid"
)

// PathInfo represents a parsed document or collection path.
type PathInfo struct {
	ProjectID    string
	DatabaseID   string
	DocumentPath string
	IsDocument   bool
	IsCollection bool
	Segments     []string
}

const (
	maxIDBytes = 1500

	autoIDLength   = 20
	autoIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	// Fully qualified form: projects/{PROJECT_ID}/databases/{DATABASE_ID}/documents/{DOCUMENT_PATH}
	firestorePathRegex = regexp.MustCompile(`^projects/([^/]+)/databases/([^/]+)/documents/(.*)$`)

	reservedIDPattern = regexp.MustCompile(`^__.*__$`)
)

// ParsePath accepts either a fully qualified resource name or a relative path
// ("users/1/posts/2") and splits it into segments.
func ParsePath(path string) (*PathInfo, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, errors.NewInvalidPathError(path, "path cannot be empty")
	}

	info := &PathInfo{}
	if matches := firestorePathRegex.FindStringSubmatch(path); len(matches) == 4 {
		info.ProjectID = matches[1]
		info.DatabaseID = matches[2]
		path = matches[3]
	}

	segments := ParseDocumentPath(path)
	if len(segments) == 0 {
		return nil, errors.NewInvalidPathError(path, "document path cannot be empty")
	}
	for i, segment := range segments {
		if err := ValidateID(segment); err != nil {
			return nil, errors.NewInvalidPathError(path, fmt.Sprintf("segment %d: %v", i, err))
		}
	}

	info.DocumentPath = strings.Join(segments, "/")
	info.Segments = segments
	info.IsDocument = len(segments)%2 == 0
	info.IsCollection = !info.IsDocument
	return info, nil
}

// ParseDocumentPath splits a relative path, dropping empty segments.
func ParseDocumentPath(documentPath string) []string {
	if documentPath == "" {
		return []string{}
	}
	var result []string
	for _, segment := range strings.Split(documentPath, "/") {
		if segment != "" {
			result = append(result, segment)
		}
	}
	return result
}

// Relative strips the projects/.../documents/ prefix when present.
func Relative(path string) string {
	path = strings.Trim(path, "/")
	if matches := firestorePathRegex.FindStringSubmatch(path); len(matches) == 4 {
		return matches[3]
	}
	return path
}

// BuildFirestorePath constructs a fully qualified resource name.
func BuildFirestorePath(projectID, databaseID, documentPath string) string {
	return fmt.Sprintf("projects/%s/databases/%s/documents/%s", projectID, databaseID, documentPath)
}

// BuildDocumentPath constructs a path from segments
func BuildDocumentPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// ValidateID checks a single document or collection id.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("id cannot be empty")
	case strings.Contains(id, "/"):
		return fmt.Errorf("id %q cannot contain '/'", id)
	case id == "." || id == "..":
		return fmt.Errorf("id %q is reserved", id)
	case reservedIDPattern.MatchString(id):
		return fmt.Errorf("id %q matches the reserved __.*__ pattern", id)
	case len(id) > maxIDBytes:
		return fmt.Errorf("id is longer than %d bytes", maxIDBytes)
	}
	return nil
}

// IsValidID reports whether id can be used as a document or collection id.
func IsValidID(id string) bool {
	return ValidateID(id) == nil
}

// IsDocumentPath reports whether path has an even number of segments.
func IsDocumentPath(path string) bool {
	segments := ParseDocumentPath(Relative(path))
	return len(segments) > 0 && len(segments)%2 == 0
}

// IsCollectionPath reports whether path has an odd number of segments.
func IsCollectionPath(path string) bool {
	return len(ParseDocumentPath(Relative(path)))%2 == 1
}

// SplitDocumentPath returns the collection path and id of a document path.
func SplitDocumentPath(path string) (collectionPath string, id string, err error) {
	info, err := ParsePath(path)
	if err != nil {
		return "", "", err
	}
	if !info.IsDocument {
		return "", "", errors.NewInvalidPathError(path, "expected a document path with an even number of segments")
	}
	n := len(info.Segments)
	return BuildDocumentPath(info.Segments[:n-1]...), info.Segments[n-1], nil
}

// CollectionID returns the last segment of a collection path, which is what collection
// group queries match on.
func CollectionID(collectionPath string) string {
	segments := ParseDocumentPath(Relative(collectionPath))
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// AutoID generates a 20 character document id in the same alphabet Firestore uses.
func AutoID() string {
	a, b := uuid.New(), uuid.New()
	raw := append(a[:], b[:]...)
	out := make([]byte, autoIDLength)
	for i := range out {
		out[i] = autoIDAlphabet[int(raw[i])%len(autoIDAlphabet)]
	}
	return string(out)
}
