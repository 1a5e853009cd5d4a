package imgsource

import "errors"

var (
	ErrSearchUnreachable = errors.New("failed to reach image search")
	ErrNoCandidatesFound = errors.New("no image candidates found in search result")
	ErrDownload          = errors.New("failed to download chosen image")
	ErrInvalidCandidate  = errors.New("candidate is not a valid image url")
	ErrRefreshInProgress = errors.New("image cache refresh is already in progress")
)
