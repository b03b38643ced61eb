package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestDefaultPipeline(t *testing.T) {
	p := Default(testLogger)

	rec, err := p.Process(&types.ProductRecord{
		Name:     "  Tom &amp; Jerry <b>Deluxe</b> ",
		Category: " Toys ",
		Price:    types.Float(10),
		Rating:   types.Float(7),
	})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "Tom & Jerry Deluxe", rec.Name)
	assert.Equal(t, "Toys", rec.Category)
	assert.Equal(t, types.UnknownBrand, rec.Brand)
	assert.Equal(t, types.DefaultAvailability, rec.Availability)
	assert.Nil(t, rec.Rating, "out-of-range rating is cleared")
	assert.Equal(t, 10.0, *rec.Price)
}

func TestDefaultPipelineDropsNameless(t *testing.T) {
	p := Default(testLogger)

	rec, err := p.Process(&types.ProductRecord{Name: " <br> ", Brand: "Acme"})
	assert.ErrorIs(t, err, types.ErrMissingName)
	assert.Nil(t, rec)
}

func TestDefaultsKeepExistingValues(t *testing.T) {
	m := &DefaultsMiddleware{Brand: types.UnknownBrand, Availability: types.DefaultAvailability}
	rec, err := m.Process(&types.ProductRecord{Name: "X", Brand: "Acme", Availability: "Out of stock"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.Brand)
	assert.Equal(t, "Out of stock", rec.Availability)
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failing" }
func (failingMiddleware) Process(*types.ProductRecord) (*types.ProductRecord, error) {
	return nil, errors.New("boom")
}

func TestPipelineWrapsErrors(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})
	p.Use(failingMiddleware{})
	assert.Equal(t, 2, p.Len())

	_, err := p.Process(&types.ProductRecord{Name: "X"})
	var pe *types.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "failing", pe.Stage)
}
