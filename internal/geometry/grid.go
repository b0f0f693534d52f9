package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

const (
	// GridSize is the number of rows and columns the safe area is split into.
	GridSize = 7
	// MaxSlots is one presenter slot plus the 24 perimeter cells.
	MaxSlots = 25
	// PresenterSlot occupies the central 5x5 block.
	PresenterSlot = 0
)

var ErrSlotOutOfRange = errors.New("slot index out of range")

// Cell returns the top-left grid cell of a slot. Perimeter slots run
// clockwise from the top-left corner:
//
//	 1  2  3  4  5  6  7
//	24                 8
//	23        0        9
//	22                10
//	21                11
//	20                12
//	19 18 17 16 15 14 13
func Cell(slot int) (row, col int, err error) {
	switch {
	case slot == PresenterSlot:
		return 1, 1, nil
	case slot >= 1 && slot <= 7:
		return 0, slot - 1, nil
	case slot >= 8 && slot <= 12:
		return slot - 7, GridSize - 1, nil
	case slot >= 13 && slot <= 19:
		return GridSize - 1, 19 - slot, nil
	case slot >= 20 && slot <= 24:
		return 25 - slot, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: %d", ErrSlotOutOfRange, slot)
	}
}

// Span is the number of grid cells a slot covers along each axis.
func Span(slot int) int {
	if slot == PresenterSlot {
		return GridSize - 2
	}
	return 1
}

// SlotRect maps a slot to its pixel rectangle inside safe. Cell edges are
// rounded once per grid line so neighbouring slots share edges exactly.
func SlotRect(slot int, safe image.Rectangle) (image.Rectangle, error) {
	row, col, err := Cell(slot)
	if err != nil {
		return image.Rectangle{}, err
	}
	span := Span(slot)

	x0 := gridLine(safe.Min.X, safe.Dx(), col)
	x1 := gridLine(safe.Min.X, safe.Dx(), col+span)
	y0 := gridLine(safe.Min.Y, safe.Dy(), row)
	y1 := gridLine(safe.Min.Y, safe.Dy(), row+span)
	return image.Rect(x0, y0, x1, y1), nil
}

func gridLine(origin, size, k int) int {
	return origin + int(math.Round(float64(k)*float64(size)/GridSize))
}
