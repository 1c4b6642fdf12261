package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBarTypicalPrice(t *testing.T) {
	t.Parallel()

	b := Bar{
		High:  decimal.NewFromInt(140),
		Low:   decimal.NewFromInt(120),
		Close: decimal.NewFromInt(130),
	}
	want := decimal.NewFromInt(130)
	if got := b.TypicalPrice(); !got.Equal(want) {
		t.Errorf("TypicalPrice() = %s, want %s", got, want)
	}
}

func TestSideOpposite(t *testing.T) {
	t.Parallel()

	if CE.Opposite() != PE {
		t.Errorf("CE.Opposite() = %v, want PE", CE.Opposite())
	}
	if PE.Opposite() != CE {
		t.Errorf("PE.Opposite() = %v, want CE", PE.Opposite())
	}
}
