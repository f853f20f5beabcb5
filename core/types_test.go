package core_test

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
)

func TestMergeRequest_Ordered(t *testing.T) {
	srcs := []core.ImageSource{core.LibraryID("a"), core.LibraryID("b"), core.LibraryID("c")}

	cases := []struct {
		name    string
		order   []int
		want    []string
		wantErr error
	}{
		{"natural", nil, []string{"a", "b", "c"}, nil},
		{"permuted", []int{2, 0, 1}, []string{"c", "a", "b"}, nil},
		{"short", []int{0, 1}, nil, apperrors.ErrInvalidOrder},
		{"duplicate", []int{0, 0, 1}, nil, apperrors.ErrInvalidOrder},
		{"out of range", []int{0, 1, 3}, nil, apperrors.ErrInvalidOrder},
		{"negative", []int{-1, 1, 2}, nil, apperrors.ErrInvalidOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := core.MergeRequest{Sources: srcs, CustomOrder: tc.order}.Ordered()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Ordered: %v", err)
			}
			for i, s := range got {
				if string(s.(core.LibraryID)) != tc.want[i] {
					t.Errorf("frame %d: got %s, want %s", i, s, tc.want[i])
				}
			}
		})
	}

	if _, err := (core.MergeRequest{}).Ordered(); !errors.Is(err, apperrors.ErrNoInputs) {
		t.Errorf("empty request: got %v, want ErrNoInputs", err)
	}
	nilSrc := core.MergeRequest{Sources: []core.ImageSource{core.LibraryID("a"), nil}}
	if _, err := nilSrc.Ordered(); !errors.Is(err, apperrors.ErrInvalidSource) || !apperrors.IsCategory(err, apperrors.CategoryConfig) {
		t.Errorf("nil source: got %v, want config ErrInvalidSource", err)
	}
}

func TestTicksFor(t *testing.T) {
	cases := []struct {
		d    time.Duration
		ts   int32
		want int64
	}{
		{2 * time.Second, 600, 1200},
		{300 * time.Millisecond, 600, 180},
		{time.Second / 3, 600, 200},
		{time.Nanosecond, 600, 1},
		{1500 * time.Millisecond, 1000, 1500},
	}
	for _, tc := range cases {
		if got := core.TicksFor(tc.d, tc.ts); got != tc.want {
			t.Errorf("TicksFor(%s, %d) = %d, want %d", tc.d, tc.ts, got, tc.want)
		}
	}
}

func TestRational(t *testing.T) {
	r := core.Rational{Value: 900, Timescale: 600}
	if r.Seconds() != 1.5 {
		t.Errorf("Seconds: got %v", r.Seconds())
	}
	if r.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration: got %s", r.Duration())
	}
	if (core.Rational{Value: 5}).Seconds() != 0 {
		t.Error("zero timescale should yield 0")
	}
}

func TestParseARGB(t *testing.T) {
	c, err := core.ParseARGB("#80FF0000")
	if err != nil {
		t.Fatalf("ParseARGB: %v", err)
	}
	if c != (core.ARGB{A: 0x80, R: 0xFF}) {
		t.Errorf("got %+v", c)
	}
	if got := c.RGBA(); got != (color.RGBA{R: 0x80, A: 0x80}) {
		t.Errorf("premultiplied: got %+v", got)
	}

	opaque, err := core.ParseARGB("102030")
	if err != nil || opaque != (core.ARGB{A: 0xFF, R: 0x10, G: 0x20, B: 0x30}) {
		t.Errorf("RRGGBB: got %+v, %v", opaque, err)
	}

	for _, bad := range []string{"", "#123", "#GG000000", "#1122334455"} {
		if _, err := core.ParseARGB(bad); err == nil {
			t.Errorf("ParseARGB(%q): expected an error", bad)
		}
	}
}

func TestRenderSettings_Validate(t *testing.T) {
	ok := core.RenderSettings{Width: 2, Height: 2, FrameDuration: time.Second}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid settings: %v", err)
	}
	if err := (core.RenderSettings{Width: 0, Height: 2, FrameDuration: time.Second}).Validate(); !errors.Is(err, apperrors.ErrInvalidDimensions) {
		t.Errorf("zero width: got %v", err)
	}
	if err := (core.RenderSettings{Width: 2, Height: 2}).Validate(); err == nil {
		t.Error("zero duration: expected an error")
	}
}

type countingReleaser struct{ n int }

func (c *countingReleaser) Release(*image.RGBA) { c.n++ }

func TestFrame_ReleaseOnce(t *testing.T) {
	owner := &countingReleaser{}
	f := core.NewFrame(0, core.Rational{}, image.NewRGBA(image.Rect(0, 0, 1, 1)), owner)
	f.Release()
	f.Release()
	if owner.n != 1 {
		t.Errorf("released %d times, want 1", owner.n)
	}
	if f.Buffer != nil {
		t.Error("buffer still attached after Release")
	}

	var nilFrame *core.Frame
	nilFrame.Release()
}

func TestImageSource_String(t *testing.T) {
	if got := core.LibraryID("2024/a.jpg").String(); got != "library:2024/a.jpg" {
		t.Errorf("got %q", got)
	}
	if got := (core.TransferHandle{Bucket: "b", Key: "k"}).String(); got != "transfer:b/k" {
		t.Errorf("got %q", got)
	}
}
