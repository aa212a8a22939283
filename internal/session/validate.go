package session

import (
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
	".zip":  "application/zip",
	".rar":  "application/x-rar-compressed",
}

// fileMeta is what the server derives from a client-declared filename.
type fileMeta struct {
	originalName string
	extension    string
	mimeType     string
}

// checkFileName validates the declared filename against the extension denylist.
// The client-supplied content type is never consulted.
func (m *Manager) checkFileName(name string) (fileMeta, *Error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	name = path.Base(name)
	if name == "" || name == "." || name == "/" {
		return fileMeta{}, reject(KindValidation, "file name not specified")
	}

	ext := strings.ToLower(path.Ext(name))
	if _, blocked := m.blocked[ext]; blocked {
		return fileMeta{}, reject(KindValidation, "file type not allowed: %s", ext)
	}

	return fileMeta{
		originalName: name,
		extension:    ext,
		mimeType:     mimeTypeFor(ext),
	}, nil
}

func (m *Manager) checkTotalSize(total int64) *Error {
	if total <= 0 {
		return reject(KindValidation, "file size must be positive")
	}
	if total > m.opts.MaxFileSize {
		return reject(KindTooLarge, "file too large, maximum size is %s", humanize.IBytes(uint64(m.opts.MaxFileSize)))
	}
	return nil
}

func checkSessionID(id string) *Error {
	if !sessionIDRe.MatchString(id) {
		return reject(KindValidation, "invalid file id")
	}
	return nil
}

func mimeTypeFor(ext string) string {
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// destinationFolder confines a client-requested folder to a relative path
// without parent references.
func (m *Manager) destinationFolder(requested string) string {
	folder := strings.Trim(path.Clean("/"+strings.ReplaceAll(requested, `\`, "/")), "/")
	if folder == "" || folder == "." {
		return m.opts.DefaultStoragePath
	}
	return folder
}

// objectKey names a stored object. name is always minted by the server.
func (m *Manager) objectKey(folder, name, ext string) string {
	return m.destinationFolder(folder) + "/" + name + ext
}
