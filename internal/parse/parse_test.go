package parse

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-resolver/internal/model"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestParseSearch_Fixture(t *testing.T) {
	t.Parallel()

	got := ParseSearch(readFixture(t, "search.html"), 10)
	require.Len(t, got, 3)

	assert.Equal(t, "Jane Doe", got[0].DisplayName)
	assert.Equal(t, "Jane", got[0].FirstName)
	assert.Equal(t, "Doe", got[0].LastName)
	assert.Equal(t, "Austin", got[0].City)
	assert.Equal(t, "TX", got[0].State)
	assert.Equal(t, "47", got[0].AgeBracket)
	assert.Equal(t, "/find/person/p1a2b3", got[0].DetailRef)

	assert.Equal(t, "Jane M Doe", got[1].DisplayName)
	assert.Equal(t, "Round Rock", got[1].City)
	assert.Equal(t, "TX", got[1].State)
	assert.Equal(t, "50s", got[1].AgeBracket)

	assert.Equal(t, "Janie Doe", got[2].DisplayName)
	assert.Equal(t, "Dallas", got[2].City)
	assert.Equal(t, "62", got[2].AgeBracket)
	assert.Equal(t, "https://people.example.com/find/person/r7", got[2].DetailRef)

	for i, c := range got {
		assert.Equal(t, i+1, c.Rank)
	}
}

func TestParseSearch_NeverDuplicatesRefs(t *testing.T) {
	t.Parallel()

	got := ParseSearch(readFixture(t, "search.html"), 50)
	seen := make(map[string]bool)
	for _, c := range got {
		assert.False(t, seen[c.DetailRef], "duplicate ref %s", c.DetailRef)
		seen[c.DetailRef] = true
	}
}

func TestParseSearch_CardsListingRelatives(t *testing.T) {
	t.Parallel()

	got := ParseSearch(readFixture(t, "search_relatives.html"), 10)
	require.Len(t, got, 2)

	assert.Equal(t, "/find/person/p1", got[0].DetailRef)
	assert.Equal(t, "Jane Doe", got[0].DisplayName)
	assert.Equal(t, "Austin", got[0].City)
	assert.Equal(t, "47", got[0].AgeBracket)
	assert.Equal(t, 1, got[0].Rank)

	assert.Equal(t, "/find/person/p2", got[1].DetailRef)
	assert.Equal(t, "Jane A Doe", got[1].DisplayName)
	assert.Equal(t, "Round Rock", got[1].City)
	assert.Equal(t, 2, got[1].Rank)
}

func TestParseSearch_StopsAtMaxResults(t *testing.T) {
	t.Parallel()

	got := ParseSearch(readFixture(t, "search.html"), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "/find/person/q9", got[1].DetailRef)
}

func TestParseSearch_NoResults(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseSearch([]byte(`<html><body><p>No results for Jane Doe</p></body></html>`), 10))
	assert.Empty(t, ParseSearch(nil, 10))
	assert.Empty(t, ParseSearch([]byte(`<div><a href="/find/person/x`), 10))
}

func TestParseDetail_Fixture(t *testing.T) {
	t.Parallel()

	c, err := ParseDetail(readFixture(t, "detail.html"))
	require.NoError(t, err)

	assert.Equal(t, "Jane A Doe", c.DisplayName)
	assert.Equal(t, "100 Congress Ave", c.StreetAddress)
	assert.Equal(t, "Austin", c.Locality)
	assert.Equal(t, "TX", c.Region)
	assert.Equal(t, "78701", c.PostalCode)
	assert.Equal(t, "100 Congress Ave, Austin, TX 78701", c.FullAddress())

	assert.Equal(t, []string{"(512) 555-0100", "(512) 555-0199"}, c.Phones)

	assert.Equal(t, []model.Relative{
		{Name: "John Doe", Age: "52", Location: "Austin, TX"},
		{Name: "Mary Doe", Location: "Round Rock, TX"},
		{Name: "Sam Roe"},
	}, c.Relatives)

	assert.Equal(t, []string{"12 Elm St, Dover, DE 19901", "PO Box 5, Houston, TX"}, c.PreviousAddresses)
}

func TestParseDetail_NameOnlyIsPartialResult(t *testing.T) {
	t.Parallel()

	c, err := ParseDetail([]byte(`<html><body><h1>Jane Doe</h1><p>We could not find more records.</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", c.DisplayName)
	assert.False(t, c.Enriched())
}

func TestParseDetail_SameLineAddress(t *testing.T) {
	t.Parallel()

	c, err := ParseDetail([]byte(`<h2>Current Address:</h2><p>9 Palm Dr, Tampa, FL 33601</p>`))
	require.NoError(t, err)
	assert.Equal(t, "9 Palm Dr", c.StreetAddress)
	assert.Equal(t, "Tampa", c.Locality)
	assert.Equal(t, "FL", c.Region)
}

func TestParseDetail_NotParseable(t *testing.T) {
	t.Parallel()

	_, err := ParseDetail([]byte(`<html><body><p>Oops, something went wrong.</p></body></html>`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotParseable))
}

func TestSectionOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sectionAddress, sectionOf("Current Address"))
	assert.Equal(t, sectionPhones, sectionOf("Phone Numbers (3)"))
	assert.Equal(t, sectionPhones, sectionOf("LANDLINES"))
	assert.Equal(t, sectionRelatives, sectionOf("Relatives & Associates"))
	assert.Equal(t, sectionPrevious, sectionOf("Previous Addresses:"))
	assert.Equal(t, sectionNone, sectionOf("Address: 1 Main St, Austin, TX"))
	assert.Equal(t, sectionNone, sectionOf("Jane Doe"))
}

func TestAgeBracket(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Age 40s":          "40s",
		"Age: 47":          "47",
		"in their 50s":     "50s",
		"Born 1975, 60s":   "60s",
		"no age available": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ageBracket(in), in)
	}
}

func TestSplitLocation(t *testing.T) {
	t.Parallel()

	city, state, ok := splitLocation("Lives in San Antonio, Texas")
	require.True(t, ok)
	assert.Equal(t, "San Antonio", city)
	assert.Equal(t, "TX", state)

	_, _, ok = splitLocation("Doe, Jane")
	assert.False(t, ok)
	_, _, ok = splitLocation("Toronto, ON")
	assert.False(t, ok)
}
