package validation

import (
	"errors"
	"path"
	"strings"
)

// allowed extensions for profile pictures
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// ValidateImageKey checks that a storage key refers to an allowed image type
// and contains no path traversal.
func ValidateImageKey(key string) error {
	if key == "" {
		return errors.New("file key is required")
	}

	if strings.Contains(key, "..") {
		return errors.New("invalid file key")
	}

	ext := strings.ToLower(path.Ext(key))
	if !imageExtensions[ext] {
		return errors.New("file type not allowed (jpg, jpeg, png, webp)")
	}

	return nil
}
