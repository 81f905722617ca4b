package backup

import (
	"errors"

	"github.com/tangthinker/unibackup/internal/automation"
)

// MaxPasses bounds the retry ladder of a batch backup.
const MaxPasses = 3

// Target status values written after an attempt.
const (
	StatusSuccess      = "Success"
	StatusRetrySuccess = "Succeeded after retry"
	StatusFailed       = "Failed after 3 tries"
)

func failStatus(err error) string {
	if errors.Is(err, automation.ErrAuthRequired) {
		return "Fail: cookies invalid => forced login page"
	}
	return "Fail: " + err.Error()
}
