package storage

import "path/filepath"

// Uploads are grouped per subsite so that deleting a tenant can reclaim its
// directory in one pass.
func UploadPath(subsiteSlug, storedName string) string {
	return filepath.Join("uploads", subsiteSlug, storedName)
}
