package aws

import (
	"errors"

	"github.com/aws/smithy-go"
)

// Error codes that mean the resource is gone.
var (
	instanceNotFoundCodes = []string{"InvalidInstanceID.NotFound"}
	bucketNotFoundCodes   = []string{"NotFound", "NoSuchBucket"}
	queueNotFoundCodes    = []string{"AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist"}
)

// hasCode reports whether err is an API error with one of codes.
func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
