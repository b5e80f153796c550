package httpclient_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/orgmigrate/internal/httpclient"
)

type pagedSource struct {
	pages          [][]string
	failOnPage     int
	requestCursors []string
}

func (source *pagedSource) fetch(_ context.Context, cursor string) (httpclient.Page[string], error) {
	source.requestCursors = append(source.requestCursors, cursor)
	pageIndex := 0
	if len(cursor) > 0 {
		parsedIndex, parseError := strconv.Atoi(cursor)
		if parseError != nil {
			return httpclient.Page[string]{}, parseError
		}
		pageIndex = parsedIndex
	}
	if source.failOnPage == pageIndex+1 {
		return httpclient.Page[string]{}, errors.New("connection reset")
	}
	page := httpclient.Page[string]{Items: source.pages[pageIndex]}
	if pageIndex+1 < len(source.pages) {
		page.HasNextPage = true
		page.NextCursor = strconv.Itoa(pageIndex + 1)
	}
	return page, nil
}

func TestCollectAllWalksEveryPage(testInstance *testing.T) {
	source := &pagedSource{pages: [][]string{{"alice", "bob"}, {"carol"}, {"dave"}}}

	items, collectError := httpclient.CollectAll(context.Background(), source.fetch)
	require.NoError(testInstance, collectError)
	require.Equal(testInstance, []string{"alice", "bob", "carol", "dave"}, items)
	require.Equal(testInstance, []string{"", "1", "2"}, source.requestCursors)
}

func TestCollectAllFailsWholeCollectionOnPageFailure(testInstance *testing.T) {
	source := &pagedSource{pages: [][]string{{"alice", "bob"}, {"carol"}, {"dave"}}, failOnPage: 2}

	items, collectError := httpclient.CollectAll(context.Background(), source.fetch)
	require.Error(testInstance, collectError)
	require.Nil(testInstance, items)

	var pageError httpclient.PageError
	require.True(testInstance, errors.As(collectError, &pageError))
	require.Equal(testInstance, 2, pageError.PageNumber)
}

func TestPaginateStopsWhenConsumerBreaks(testInstance *testing.T) {
	source := &pagedSource{pages: [][]string{{"alice"}, {"bob"}, {"carol"}}}

	var firstPage httpclient.Page[string]
	for page, pageError := range httpclient.Paginate(context.Background(), source.fetch) {
		require.NoError(testInstance, pageError)
		firstPage = page
		break
	}

	require.Equal(testInstance, []string{"alice"}, firstPage.Items)
	require.Len(testInstance, source.requestCursors, 1)
}

func TestPaginateRejectsStalledCursor(testInstance *testing.T) {
	stalled := func(context.Context, string) (httpclient.Page[string], error) {
		return httpclient.Page[string]{Items: []string{"alice"}, HasNextPage: true}, nil
	}

	_, collectError := httpclient.CollectAll(context.Background(), stalled)
	require.ErrorIs(testInstance, collectError, httpclient.ErrCursorNotAdvancing)
}
