package httpclient

import (
	"context"
	"errors"
	"iter"
)

const cursorNotAdvancingMessageConstant = "pagination cursor did not advance"

// ErrCursorNotAdvancing indicates a server claimed more pages without a new cursor.
var ErrCursorNotAdvancing = errors.New(cursorNotAdvancingMessageConstant)

// Page is one slice of a cursor-driven collection.
type Page[T any] struct {
	Items       []T
	NextCursor  string
	HasNextPage bool
}

// PageFetcher retrieves the page that starts at cursor. The first call receives
// an empty cursor.
type PageFetcher[T any] func(executionContext context.Context, cursor string) (Page[T], error)

// Paginate lazily walks a collection. A failed page is yielded as PageError and
// ends the sequence.
func Paginate[T any](executionContext context.Context, fetch PageFetcher[T]) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		cursor := ""
		for pageNumber := 1; ; pageNumber++ {
			if contextError := executionContext.Err(); contextError != nil {
				yield(Page[T]{}, PageError{PageNumber: pageNumber, Cause: contextError})
				return
			}

			page, fetchError := fetch(executionContext, cursor)
			if fetchError != nil {
				yield(Page[T]{}, PageError{PageNumber: pageNumber, Cause: fetchError})
				return
			}
			if !yield(page, nil) {
				return
			}
			if !page.HasNextPage {
				return
			}
			if len(page.NextCursor) == 0 || page.NextCursor == cursor {
				yield(Page[T]{}, PageError{PageNumber: pageNumber + 1, Cause: ErrCursorNotAdvancing})
				return
			}
			cursor = page.NextCursor
		}
	}
}

// CollectAll gathers every item. Any page failure fails the whole collection.
func CollectAll[T any](executionContext context.Context, fetch PageFetcher[T]) ([]T, error) {
	var items []T
	for page, pageError := range Paginate(executionContext, fetch) {
		if pageError != nil {
			return nil, pageError
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
