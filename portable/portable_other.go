//go:build !linux

package portable

import "errors"

// remap_file_pages(2) is Linux-only.
func remapFilePages(region []byte, virtPage, numPages, fileOffsetPages int) error {
	return errors.New("portable: remap_file_pages not available on this platform")
}
