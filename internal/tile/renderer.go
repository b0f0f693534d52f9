package tile

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"
	"unicode"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/geometry"
	"github.com/DoyleJ11/tilecast/internal/platform"
	"go.uber.org/zap"
)

var ErrInvalidParticipant = errors.New("invalid participant id")

// Label bands below the video, in device independent pixels.
const (
	labelBand          = 25
	presenterLabelBand = 35

	maxParticipantIDLen = 128
)

type Request struct {
	Slot          int
	ParticipantID string
	ScreenName    string
	Color         engine.Color
	SafeArea      image.Rectangle
	Scale         float64
}

// Tile is what one slot puts on the surface: the patch sits one layer above
// the video so its cut-out frames the feed.
type Tile struct {
	Slot  int
	Patch platform.ImagePatch
	Video platform.VideoPlacement
}

type Renderer struct {
	logger *zap.Logger
	border float64
}

// NewRenderer returns a Renderer drawing borders of borderDIP device independent pixels.
func NewRenderer(logger *zap.Logger, borderDIP float64) *Renderer {
	return &Renderer{logger: logger.Named("tile"), border: borderDIP}
}

func ValidateParticipantID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > maxParticipantIDLen {
		return fmt.Errorf("%w: %q", ErrInvalidParticipant, id)
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: %q", ErrInvalidParticipant, id)
		}
	}
	return nil
}

// Rects returns the slot rectangle and the video rectangle inside it, both in
// raw pixels. The presenter keeps the whole inset area; perimeter slots are
// narrowed to a centered 16:9 box.
func (r *Renderer) Rects(slot int, safe image.Rectangle, scale float64) (slotRect, video, band image.Rectangle, err error) {
	slotRect, err = geometry.SlotRect(slot, safe)
	if err != nil {
		return
	}

	border := int(math.Round(r.border * scale))
	labelH := labelBand
	if slot == geometry.PresenterSlot {
		labelH = presenterLabelBand
	}
	labelPx := int(math.Round(float64(labelH) * scale))

	inner := geometry.Inset(slotRect, geometry.Insets{
		Top: border, Right: border, Bottom: border + labelPx, Left: border,
	})
	if !inner.Empty() {
		band = image.Rect(inner.Min.X, inner.Max.Y, inner.Max.X, inner.Max.Y+labelPx)
	}

	video = inner
	if slot != geometry.PresenterSlot {
		video = geometry.FitAspect(inner, geometry.AspectW, geometry.AspectH)
	}
	return slotRect, video, band, nil
}

// Render draws one tile. It returns nil, after logging a warning, when the
// tile cannot be drawn; callers skip nil tiles and carry on with the batch.
func (r *Renderer) Render(req Request) *Tile {
	log := r.logger.With(zap.Int("slot", req.Slot), zap.String("participant_id", req.ParticipantID))

	if err := ValidateParticipantID(req.ParticipantID); err != nil {
		log.Warn("skipping tile", zap.Error(err))
		return nil
	}
	if req.Scale <= 0 || math.IsNaN(req.Scale) || math.IsInf(req.Scale, 0) {
		log.Warn("skipping tile", zap.Float64("scale", req.Scale))
		return nil
	}

	slotRect, video, band, err := r.Rects(req.Slot, req.SafeArea, req.Scale)
	if err != nil {
		log.Warn("skipping tile", zap.Error(err))
		return nil
	}
	if video.Empty() {
		log.Warn("skipping tile, no room for video", zap.Stringer("slot_rect", slotRect))
		return nil
	}

	// Patch coordinates are relative to the slot's top-left corner.
	origin := slotRect.Min
	img := image.NewRGBA(image.Rect(0, 0, slotRect.Dx(), slotRect.Dy()))
	draw.Draw(img, img.Bounds(), image.NewUniform(req.Color.RGBA()), image.Point{}, draw.Src)
	if req.ScreenName != "" {
		drawLabel(img, band.Sub(origin), req.ScreenName)
	}
	draw.Draw(img, video.Sub(origin), image.Transparent, image.Point{}, draw.Src)

	fit := platform.FitContain
	if req.Slot == geometry.PresenterSlot {
		fit = platform.FitCover
	}

	return &Tile{
		Slot: req.Slot,
		Patch: platform.ImagePatch{
			Image:  img,
			X:      toDIP(slotRect.Min.X, req.Scale),
			Y:      toDIP(slotRect.Min.Y, req.Scale),
			ZIndex: req.Slot + 1,
		},
		Video: platform.VideoPlacement{
			ParticipantID: req.ParticipantID,
			X:             toDIP(video.Min.X, req.Scale),
			Y:             toDIP(video.Min.Y, req.Scale),
			Width:         sizeDIP(video.Dx(), req.Scale),
			Height:        sizeDIP(video.Dy(), req.Scale),
			ZIndex:        req.Slot,
			FitMode:       fit,
		},
	}
}

func toDIP(raw int, scale float64) int {
	return int(math.Floor(float64(raw) / scale))
}

func sizeDIP(raw int, scale float64) int {
	return int(math.Round(float64(raw) / scale))
}
