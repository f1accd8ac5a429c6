// Package led produces colors for the headlight: HSV conversion and a hue
// chase paced by a token bucket.
package led

import (
	"context"
	"errors"
	"fmt"
	"headlink/message"
	"math"

	"golang.org/x/time/rate"
)

var ErrOutOfRange = errors.New("led: hsv value out of range")

// RGB is an 8-bit per channel color.
type RGB struct {
	R, G, B uint8
}

// Message converts c to a SetColor message.
func (c RGB) Message() message.SetColor {
	return message.SetColor{R: c.R, G: c.G, B: c.B}
}

// FromHSV converts hue (0-360 degrees), saturation and value (0-100 percent)
// to RGB.
func FromHSV(h, s, v uint32) (RGB, error) {
	if h > 360 || s > 100 || v > 100 {
		return RGB{}, fmt.Errorf("%w: h=%d s=%d v=%d", ErrOutOfRange, h, s, v)
	}
	sf := float64(s) / 100
	vf := float64(v) / 100
	c := sf * vf
	x := c * (1 - math.Abs(math.Mod(float64(h)/60, 2)-1))
	m := vf - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return RGB{
		R: uint8((r + m) * 255),
		G: uint8((g + m) * 255),
		B: uint8((b + m) * 255),
	}, nil
}

// Chase walks the hue circle in fixed steps at constant saturation and value.
type Chase struct {
	Step       uint32 // degrees per frame, 1-360
	Saturation uint32
	Value      uint32

	hue uint32
}

// Next returns the color for the current hue and advances it.
func (c *Chase) Next() (RGB, error) {
	rgb, err := FromHSV(c.hue, c.Saturation, c.Value)
	if err != nil {
		return RGB{}, err
	}
	step := c.Step
	if step == 0 {
		step = 1
	}
	c.hue = (c.hue + step) % 360
	return rgb, nil
}

// ColorSender delivers one color to the headlight.
type ColorSender interface {
	SetColor(ctx context.Context, c message.SetColor) error
}

// Run sends chase colors paced by limiter until ctx is done, a send fails or
// frames colors were sent (frames <= 0 means no limit). It returns the
// number of colors sent.
func Run(ctx context.Context, dst ColorSender, chase *Chase, limiter *rate.Limiter, frames int) (int, error) {
	sent := 0
	for frames <= 0 || sent < frames {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			return sent, err
		}
		rgb, err := chase.Next()
		if err != nil {
			return sent, err
		}
		if err := dst.SetColor(ctx, rgb.Message()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
