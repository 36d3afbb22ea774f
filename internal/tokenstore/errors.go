package tokenstore

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotConfigured is returned by writes when no persistence backend was
	// configured at startup. Reads degrade to "absent" instead.
	ErrNotConfigured = errors.New("token store is not configured; check environment variables")

	// ErrPermissionDenied indicates the backing store rejected the operation
	// through its access-control rules.
	ErrPermissionDenied = errors.New("token store permission denied")
)

// isPermissionError recognizes access-control rejections from the Mongo
// server so the store can surface them distinctly from availability errors.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 13 = Unauthorized
		if cmdErr.Code == 13 {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "not authorized") || strings.Contains(msg, "unauthorized")
}
