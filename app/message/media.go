package message

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ibnu-sodik/wage-backend/app/wa"
)

var extKinds = map[string]wa.MediaKind{
	".jpg":  wa.MediaImage,
	".jpeg": wa.MediaImage,
	".png":  wa.MediaImage,
	".gif":  wa.MediaImage,
	".webp": wa.MediaImage,
	".mp4":  wa.MediaVideo,
	".mov":  wa.MediaVideo,
	".avi":  wa.MediaVideo,
	".mkv":  wa.MediaVideo,
	".3gp":  wa.MediaVideo,
	".mp3":  wa.MediaAudio,
	".ogg":  wa.MediaAudio,
	".m4a":  wa.MediaAudio,
	".wav":  wa.MediaAudio,
	".aac":  wa.MediaAudio,
	".pdf":  wa.MediaDocument,
	".doc":  wa.MediaDocument,
	".docx": wa.MediaDocument,
	".xls":  wa.MediaDocument,
	".xlsx": wa.MediaDocument,
	".ppt":  wa.MediaDocument,
	".pptx": wa.MediaDocument,
	".csv":  wa.MediaDocument,
	".txt":  wa.MediaDocument,
	".zip":  wa.MediaDocument,
}

var extMIMEs = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".3gp":  "video/3gpp",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".zip":  "application/zip",
}

// Limits bounds local attachment sizes per media kind, in bytes. Zero means
// unlimited.
type Limits struct {
	MaxImageBytes    int64
	MaxVideoBytes    int64
	MaxAudioBytes    int64
	MaxDocumentBytes int64
}

// DefaultLimits returns the production attachment size limits
func DefaultLimits() Limits {
	return Limits{
		MaxImageBytes:    16 << 20,
		MaxVideoBytes:    64 << 20,
		MaxAudioBytes:    16 << 20,
		MaxDocumentBytes: 100 << 20,
	}
}

func (l Limits) forKind(kind wa.MediaKind) int64 {
	switch kind {
	case wa.MediaImage:
		return l.MaxImageBytes
	case wa.MediaVideo:
		return l.MaxVideoBytes
	case wa.MediaAudio:
		return l.MaxAudioBytes
	default:
		return l.MaxDocumentBytes
	}
}

// ClassifyMedia maps a file reference to its media kind and MIME type by
// extension
func ClassifyMedia(ref string) (wa.MediaKind, string, error) {
	ext := strings.ToLower(filepath.Ext(stripQuery(ref)))
	kind, ok := extKinds[ext]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, ext)
	}
	return kind, extMIMEs[ext], nil
}

func stripQuery(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		return ref[:i]
	}
	return ref
}

// resolveMedia turns a stored file URL into a Media payload. References
// under the public base URL are mapped back into the uploads directory and
// size-checked; anything else is passed through as a remote reference.
func (b *Builder) resolveMedia(fileURL string) (*wa.Media, error) {
	if fileURL == "" {
		return nil, ErrMediaMissing
	}
	kind, mime, err := ClassifyMedia(fileURL)
	if err != nil {
		return nil, err
	}

	path := fileURL
	local := false
	if b.PublicBaseURL != "" && strings.HasPrefix(fileURL, b.PublicBaseURL) {
		rel := strings.TrimPrefix(fileURL, b.PublicBaseURL)
		rel = strings.TrimPrefix(rel, "/")
		rel = strings.TrimPrefix(rel, "uploads/")
		path = filepath.Join(b.UploadsDir, filepath.FromSlash(rel))
		local = true
	} else if !strings.Contains(fileURL, "://") {
		path = filepath.Join(b.UploadsDir, filepath.FromSlash(strings.TrimPrefix(fileURL, "/")))
		local = true
	}

	if local {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMediaMissing, fileURL)
		}
		if limit := b.Limits.forKind(kind); limit > 0 && info.Size() > limit {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrMediaTooLarge, fileURL, info.Size(), limit)
		}
	}

	return &wa.Media{
		Kind:     kind,
		Path:     path,
		MIMEType: mime,
		FileName: filepath.Base(stripQuery(fileURL)),
	}, nil
}
