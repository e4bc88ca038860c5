package service

import (
	"regexp"
	"strings"

	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/storage"
)

const (
	AttachmentKindPDF   = "pdf"
	AttachmentKindImage = "image"
	AttachmentKindFile  = "file"
)

var (
	imageExtensions    = map[string]bool{"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true}
	unsafeDisplayChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// DescribeAttachment derives the display metadata of a stored file. token is
// the signed reference clients use to download it.
func DescribeAttachment(filename, codiceArticolo, token string) models.Attachment {
	ext := storage.Extension(filename)
	if ext == "" {
		ext = "bin"
	}

	kind := AttachmentKindFile
	switch {
	case ext == "pdf":
		kind = AttachmentKindPDF
	case imageExtensions[ext]:
		kind = AttachmentKindImage
	}

	base := strings.Trim(unsafeDisplayChars.ReplaceAllString(codiceArticolo, "-"), "-")
	if base == "" {
		base = "allegato"
	}

	return models.Attachment{
		Token:             token,
		Kind:              kind,
		Extension:         ext,
		SuggestedFilename: base + "." + ext,
	}
}
