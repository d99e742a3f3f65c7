package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/picklr-io/shipyard/internal/cloud"
)

// Error codes meaning the addressed resource does not exist.
var notFoundCodes = map[string]bool{
	"ResourceNotFoundException": true,
	"NoSuchEntity":              true,
	"NoSuchBucket":              true,
	"NotFound":                  true,
	"NoSuchKey":                 true,
	"NoSuchDistribution":        true,
	"NoSuchInvalidation":        true,
	"NoSuchHostedZone":          true,
	"NoSuchChange":              true,
	"NotFoundException":         true,
	"ParameterNotFound":         true,
}

// Error codes caused by replication lag. Throttling is left to the SDK's
// standard retryer and stays fatal once its attempts run out.
var retryableCodes = map[string]bool{
	"PriorRequestNotComplete": true,
}

// wrapErr classifies an SDK error. Lambda reports a role that IAM has not
// finished replicating as an invalid parameter, and a function that is
// still applying an earlier update as a conflict; both are retryable.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return &cloud.Error{Kind: cloud.KindFatal, Op: op, Err: err}
	}

	code, msg := ae.ErrorCode(), ae.ErrorMessage()
	kind := cloud.KindFatal
	switch {
	case notFoundCodes[code]:
		kind = cloud.KindNotFound
	case retryableCodes[code]:
		kind = cloud.KindRetryable
	case code == "InvalidParameterValueException" && strings.Contains(strings.ToLower(msg), "role"):
		kind = cloud.KindRetryable
	case code == "ResourceConflictException" && strings.Contains(strings.ToLower(msg), "in progress"):
		kind = cloud.KindRetryable
	}
	return &cloud.Error{Kind: kind, Op: op, Code: code, Message: msg, Err: err}
}

// absent reports whether err means the resource does not exist, so lookups
// can return (nil, nil).
func absent(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && notFoundCodes[ae.ErrorCode()]
}
