package extract

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

func TestPDFBackendJoinsPagesInOrder(t *testing.T) {
	doc := Document{Key: "two_pages.pdf", Format: FormatPDF, Data: readFixture(t, "two_pages.pdf")}

	text, err := PDFBackend{}.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Pagina uno: locazione.Pagina due: canone 800 euro.", text)
}

func TestExtractPDF(t *testing.T) {
	opener := &fakeOpener{files: map[string][]byte{
		"t1/c1/contratto.pdf": readFixture(t, "two_pages.pdf"),
	}}

	text, err := New(opener).Extract(context.Background(), "t1/c1/contratto.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Pagina uno: locazione.Pagina due: canone 800 euro.", text)
	assert.Equal(t, 1, opener.opens)
}

func TestPDFBackendStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := Document{Key: "two_pages.pdf", Format: FormatPDF, Data: readFixture(t, "two_pages.pdf")}
	_, err := PDFBackend{}.Extract(ctx, doc)
	assert.ErrorIs(t, err, context.Canceled)
}
