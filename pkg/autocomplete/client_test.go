package autocomplete

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-resolver/internal/resilience"
)

const testURL = "https://suggest.example.com/suggest"

func newMockClient(t *testing.T) (Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c := NewClient(
		WithBaseURL(testURL),
		WithHTTPClient(&http.Client{Transport: mt}),
		WithRateLimit(1000),
	)
	return c, mt
}

func TestResolve_TopResultOnly(t *testing.T) {
	t.Parallel()

	c, mt := newMockClient(t)
	mt.RegisterResponder("GET", `=~^https://suggest\.example\.com/suggest`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "100 Congress Ave, Austin, TX 78701", req.URL.Query().Get("input"))
			return httpmock.NewStringResponse(http.StatusOK, `{
				"autocomplete": [
					{"mpr_id": "29374", "area_type": "address", "full_address": ["100 Congress Ave, Austin, TX 78701"]},
					{"mpr_id": "99999", "area_type": "address"}
				]
			}`), nil
		})

	id, found, err := c.Resolve(context.Background(), "100 Congress Ave, Austin, TX 78701")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "29374", id)
}

func TestResolve_EmptyResult(t *testing.T) {
	t.Parallel()

	c, mt := newMockClient(t)
	mt.RegisterResponder("GET", `=~^https://suggest\.example\.com/suggest`,
		httpmock.NewStringResponder(http.StatusOK, `{"autocomplete": []}`))

	id, found, err := c.Resolve(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)
}

func TestResolve_TopResultWithoutIDIsNotFound(t *testing.T) {
	t.Parallel()

	c, mt := newMockClient(t)
	mt.RegisterResponder("GET", `=~^https://suggest\.example\.com/suggest`,
		httpmock.NewStringResponder(http.StatusOK, `{"autocomplete": [{"area_type": "city"}, {"mpr_id": "1"}]}`))

	_, found, err := c.Resolve(context.Background(), "Austin")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolve_MemoizesHitsAndMisses(t *testing.T) {
	t.Parallel()

	c, mt := newMockClient(t)
	mt.RegisterResponder("GET", `=~^https://suggest\.example\.com/suggest`,
		httpmock.NewStringResponder(http.StatusOK, `{"autocomplete": [{"mpr_id": "42"}]}`))

	for i := 0; i < 3; i++ {
		id, found, err := c.Resolve(context.Background(), "  1 Main St,  Austin, TX ")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "42", id)
	}
	_, _, err := c.Resolve(context.Background(), "1 MAIN ST, AUSTIN, TX")
	require.NoError(t, err)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestResolve_ErrorsAreClassifiedAndNotCached(t *testing.T) {
	t.Parallel()

	c, mt := newMockClient(t)
	mt.RegisterResponder("GET", `=~^https://suggest\.example\.com/suggest`,
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	_, _, err := c.Resolve(context.Background(), "1 Main St")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	mt.RegisterResponder("GET", `=~^https://suggest\.example\.com/suggest`,
		httpmock.NewStringResponder(http.StatusTooManyRequests, ""))
	_, _, err = c.Resolve(context.Background(), "1 Main St")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))

	mt.RegisterResponder("GET", `=~^https://suggest\.example\.com/suggest`,
		httpmock.NewStringResponder(http.StatusBadRequest, "bad input"))
	_, _, err = c.Resolve(context.Background(), "1 Main St")
	require.Error(t, err)
	assert.Equal(t, resilience.ClassPermanent, resilience.ClassifyError(err))

	assert.Equal(t, 3, mt.GetTotalCallCount())
}

func TestResolve_BlankAddress(t *testing.T) {
	t.Parallel()

	c, mt := newMockClient(t)
	_, found, err := c.Resolve(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, mt.GetTotalCallCount())
}
