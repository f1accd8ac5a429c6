package led

import (
	"context"
	"errors"
	"headlink/message"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestFromHSV(t *testing.T) {
	cases := []struct {
		h, s, v uint32
		want    RGB
	}{
		{0, 100, 100, RGB{255, 0, 0}},
		{120, 100, 100, RGB{0, 255, 0}},
		{240, 100, 100, RGB{0, 0, 255}},
		{60, 100, 100, RGB{255, 255, 0}},
		{0, 0, 100, RGB{255, 255, 255}},
		{200, 50, 0, RGB{0, 0, 0}},
		{360, 100, 100, RGB{255, 0, 0}},
	}
	for _, tc := range cases {
		got, err := FromHSV(tc.h, tc.s, tc.v)
		if err != nil {
			t.Fatalf("FromHSV(%d,%d,%d): %v", tc.h, tc.s, tc.v, err)
		}
		if got != tc.want {
			t.Errorf("FromHSV(%d,%d,%d) = %v, want %v", tc.h, tc.s, tc.v, got, tc.want)
		}
	}
}

func TestFromHSVOutOfRange(t *testing.T) {
	for _, in := range [][3]uint32{{361, 0, 0}, {0, 101, 0}, {0, 0, 101}} {
		if _, err := FromHSV(in[0], in[1], in[2]); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("FromHSV%v: expected ErrOutOfRange, got %v", in, err)
		}
	}
}

func TestChaseWrapsHue(t *testing.T) {
	c := &Chase{Step: 120, Saturation: 100, Value: 100}
	want := []RGB{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {255, 0, 0}}
	for i, w := range want {
		got, err := c.Next()
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Fatalf("frame %d: got %v, want %v", i, got, w)
		}
	}
}

type recorder struct {
	colors []message.SetColor
	err    error
}

func (r *recorder) SetColor(ctx context.Context, c message.SetColor) error {
	if r.err != nil {
		return r.err
	}
	r.colors = append(r.colors, c)
	return nil
}

func TestRunStopsAfterFrames(t *testing.T) {
	rec := &recorder{}
	n, err := Run(context.Background(), rec, &Chase{Step: 90, Saturation: 100, Value: 100}, rate.NewLimiter(rate.Inf, 1), 4)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || len(rec.colors) != 4 {
		t.Fatalf("expected 4 colors, got n=%d recorded=%d", n, len(rec.colors))
	}
	if rec.colors[0] != (message.SetColor{R: 255}) {
		t.Fatalf("first color: got %+v", rec.colors[0])
	}
}

func TestRunStopsOnSendError(t *testing.T) {
	boom := errors.New("closed")
	n, err := Run(context.Background(), &recorder{err: boom}, &Chase{Saturation: 100, Value: 100}, rate.NewLimiter(rate.Inf, 1), 0)
	if !errors.Is(err, boom) || n != 0 {
		t.Fatalf("expected send error after 0 frames, got n=%d err=%v", n, err)
	}
}

func TestRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rec := &recorder{}
	// 20 per second: only a couple of frames fit into 50ms.
	_, err := Run(ctx, rec, &Chase{Step: 10, Saturation: 100, Value: 100}, rate.NewLimiter(20, 1), 0)
	// The limiter refuses waits that would overrun the deadline, so the
	// error is either the limiter's or the context's.
	if err == nil {
		t.Fatal("expected Run to stop with an error")
	}
	if len(rec.colors) > 3 {
		t.Fatalf("limiter not applied, sent %d colors", len(rec.colors))
	}
}
