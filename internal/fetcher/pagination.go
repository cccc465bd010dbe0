package fetcher

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ammobase/harvester/pkg/types"
)

// pageURL builds the URL for the nth page (1-based from StartPage) of a
// source according to its pagination strategy.
func pageURL(src types.Source, page int) (string, error) {
	switch src.Pagination.Kind {
	case types.PaginationNone, "":
		return src.URL, nil

	case types.PaginationQuery:
		u, err := url.Parse(src.URL)
		if err != nil {
			return "", fmt.Errorf("parse source url: %w", err)
		}
		param := src.Pagination.Param
		if param == "" {
			param = "page"
		}
		q := u.Query()
		q.Set(param, strconv.Itoa(page))
		u.RawQuery = q.Encode()
		return u.String(), nil

	case types.PaginationPath:
		base := strings.TrimRight(src.URL, "/")
		if seg := src.Pagination.Param; seg != "" {
			return base + "/" + seg + "/" + strconv.Itoa(page), nil
		}
		return base + "/" + strconv.Itoa(page), nil

	default:
		return "", fmt.Errorf("unknown pagination kind %q", src.Pagination.Kind)
	}
}

// pageCount returns how many pages to attempt for a source, clamped to the
// hard ceiling regardless of source configuration. The second return reports
// whether the ceiling did the clamping; a source that configured its own
// bound and reached it has simply finished, not hit a cap.
func pageCount(src types.Source, hardCeiling int) (int, bool) {
	if src.Pagination.Kind == types.PaginationNone || src.Pagination.Kind == "" {
		return 1, false
	}
	n := src.Pagination.MaxPages
	if n <= 0 || n > hardCeiling {
		return hardCeiling, true
	}
	return n, false
}

func startPage(src types.Source) int {
	if src.Pagination.StartPage > 0 {
		return src.Pagination.StartPage
	}
	return 1
}
